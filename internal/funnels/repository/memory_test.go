package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededMemory(t *testing.T) (*Memory, domain.Funnel) {
	t.Helper()
	m := NewMemory()
	client := domain.Client{ID: uuid.New(), AccountID: uuid.New(), Name: "Sunrise Realty"}
	m.PutClient(client)
	f := domain.Funnel{ID: uuid.New(), ClientID: client.ID, Name: "Buyers"}
	m.PutFunnel(f)
	return m, f
}

func TestMemoryConcurrentMergesKeepEveryKey(t *testing.T) {
	m, f := seededMemory(t)
	ctx := context.Background()
	s, err := m.CreateSession(ctx, domain.NewSession{FunnelID: f.ID, Channel: domain.ChannelWeb, SessionToken: "tok", Status: domain.SessionStarted})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.MergeSessionAnswers(ctx, domain.AnswerWrite{
				SessionID: s.ID,
				Patch:     domain.Answers{fmt.Sprintf("q%d", i): i},
				Progress:  i % 7,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := m.FindSession(ctx, "tok", f.ID)
	require.NoError(t, err)
	assert.Len(t, got.Answers, 50)
	assert.Equal(t, 6, got.StepProgress)
}

func TestMemoryExpectedProgressGuard(t *testing.T) {
	m, f := seededMemory(t)
	ctx := context.Background()
	clientID := f.ClientID
	s, err := m.CreateSession(ctx, domain.NewSession{FunnelID: f.ID, Channel: domain.ChannelChat, ClientID: &clientID, LeadPhone: "+13055550142", Status: domain.SessionActive})
	require.NoError(t, err)

	zero := 0
	_, err = m.MergeSessionAnswers(ctx, domain.AnswerWrite{SessionID: s.ID, Patch: domain.Answers{"timeline": "asap"}, Progress: 1, ExpectedProgress: &zero})
	require.NoError(t, err)

	_, err = m.MergeSessionAnswers(ctx, domain.AnswerWrite{SessionID: s.ID, Patch: domain.Answers{"timeline": "exploring"}, Progress: 1, ExpectedProgress: &zero})
	assert.ErrorIs(t, err, ports.ErrStaleProgress)
}

func TestMemoryOneActiveChatSessionPerPhone(t *testing.T) {
	m, f := seededMemory(t)
	ctx := context.Background()
	clientID := f.ClientID
	params := domain.NewSession{FunnelID: f.ID, Channel: domain.ChannelChat, ClientID: &clientID, LeadPhone: "+13055550142", Status: domain.SessionActive}

	_, err := m.CreateSession(ctx, params)
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, params)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestMemoryCompleteSessionOnce(t *testing.T) {
	m, f := seededMemory(t)
	ctx := context.Background()
	s, err := m.CreateSession(ctx, domain.NewSession{FunnelID: f.ID, Channel: domain.ChannelWeb, SessionToken: "tok", Status: domain.SessionStarted})
	require.NoError(t, err)

	completion := domain.Completion{
		Write:  domain.AnswerWrite{SessionID: s.ID},
		Status: domain.SessionCompleted,
		Lead:   domain.NewLead{FunnelID: f.ID, SessionID: &s.ID, Source: domain.LeadSourceWeb},
	}
	_, lead, err := m.CompleteSession(ctx, completion)
	require.NoError(t, err)
	assert.Equal(t, f.ClientID, lead.ClientID)

	_, _, err = m.CompleteSession(ctx, completion)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	ids, err := m.ListLeadIDs(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
