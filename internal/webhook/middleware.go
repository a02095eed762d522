package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/httpkit"
	"leadfunnel_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Twilio-Signature"

// SignatureAuthMiddleware verifies the provider's request signature: an
// HMAC-SHA1 over the public URL followed by the sorted form parameters.
// Without an auth token every request passes.
func SignatureAuthMiddleware(cfg config.TwilioConfig, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := cfg.GetTwilioAuthToken()
		if token == "" {
			c.Next()
			return
		}

		if err := c.Request.ParseForm(); err != nil {
			httpkit.HandleError(c, apperr.BadRequest(errInvalidRequest))
			c.Abort()
			return
		}

		expected := computeSignature(token, requestURL(c, cfg.GetPublicBaseURL()), c.Request.PostForm)
		supplied := c.GetHeader(signatureHeader)
		if supplied == "" || !hmac.Equal([]byte(supplied), []byte(expected)) {
			log.Warn("rejected chat webhook with bad signature", "path", c.Request.URL.Path, "ip", c.ClientIP())
			httpkit.HandleError(c, apperr.Forbidden("invalid signature"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func requestURL(c *gin.Context, baseURL string) string {
	if baseURL != "" {
		return baseURL + c.Request.URL.RequestURI()
	}
	scheme := "https"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func computeSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
