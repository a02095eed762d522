package webhook

import (
	"encoding/xml"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message *string  `xml:"Message,omitempty"`
}

// renderTwiML encodes a messaging reply. An empty text yields an empty
// <Response/> so the provider sends nothing back.
func renderTwiML(text string) ([]byte, error) {
	resp := twimlResponse{}
	if text != "" {
		resp.Message = &text
	}
	body, err := xml.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
