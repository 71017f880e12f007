package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

var (
	created = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	later   = created.Add(time.Hour)
)

func orderAt(status Status, buyerID string) *Order {
	o := &Order{ID: "o1", BuyerID: buyerID}
	start(o, created)
	if status != StatusPending {
		o.Status = status
		o.History = append(o.History, StatusRecord{Status: status, Timestamp: created.Add(time.Minute)})
	}
	return o
}

func TestTransition(t *testing.T) {
	admin := auth.Admin("coffee")
	owner := auth.Buyer("acc-1")
	stranger := auth.Buyer("acc-2")
	guest := auth.Guest()

	type outcome int
	const (
		ok outcome = iota
		invalid
		forbidden
	)

	tests := []struct {
		name   string
		from   Status
		to     Status
		actor  auth.Actor
		expect outcome
	}{
		{name: "admin pending to processing", from: StatusPending, to: StatusProcessing, actor: admin, expect: ok},
		{name: "admin pending to completed", from: StatusPending, to: StatusCompleted, actor: admin, expect: ok},
		{name: "admin processing to shipping", from: StatusProcessing, to: StatusShipping, actor: admin, expect: ok},
		{name: "admin shipping back to processing", from: StatusShipping, to: StatusProcessing, actor: admin, expect: ok},
		{name: "admin shipping to completed", from: StatusShipping, to: StatusCompleted, actor: admin, expect: ok},
		{name: "admin same status", from: StatusProcessing, to: StatusProcessing, actor: admin, expect: invalid},
		{name: "admin back to pending", from: StatusProcessing, to: StatusPending, actor: admin, expect: invalid},
		{name: "admin cannot cancel", from: StatusPending, to: StatusCancelled, actor: admin, expect: forbidden},
		{name: "buyer cannot process", from: StatusPending, to: StatusProcessing, actor: owner, expect: forbidden},
		{name: "guest cannot complete", from: StatusPending, to: StatusCompleted, actor: guest, expect: forbidden},

		{name: "owner cancels pending", from: StatusPending, to: StatusCancelled, actor: owner, expect: ok},
		{name: "owner cannot cancel processing", from: StatusProcessing, to: StatusCancelled, actor: owner, expect: invalid},
		{name: "owner cannot cancel shipping", from: StatusShipping, to: StatusCancelled, actor: owner, expect: invalid},
		{name: "stranger cannot cancel", from: StatusPending, to: StatusCancelled, actor: stranger, expect: forbidden},
		{name: "guest cannot cancel", from: StatusPending, to: StatusCancelled, actor: guest, expect: forbidden},

		{name: "cancelled to processing", from: StatusCancelled, to: StatusProcessing, actor: admin, expect: invalid},
		{name: "cancelled to completed", from: StatusCancelled, to: StatusCompleted, actor: admin, expect: invalid},
		{name: "cancelled to cancelled", from: StatusCancelled, to: StatusCancelled, actor: owner, expect: invalid},
		{name: "cancelled by stranger", from: StatusCancelled, to: StatusShipping, actor: stranger, expect: invalid},
		{name: "completed to shipping", from: StatusCompleted, to: StatusShipping, actor: admin, expect: invalid},
		{name: "completed to cancelled", from: StatusCompleted, to: StatusCancelled, actor: owner, expect: invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := orderAt(tt.from, "acc-1")
			before := len(o.History)

			err := Transition(o, tt.to, tt.actor, later)

			switch tt.expect {
			case ok:
				require.NoError(t, err)
				require.Len(t, o.History, before+1)
				last := o.History[len(o.History)-1]
				assert.Equal(t, tt.to, last.Status)
				assert.Equal(t, later, last.Timestamp)
				assert.Equal(t, tt.to, o.Status)
			case invalid:
				var ite *InvalidTransitionError
				require.ErrorAs(t, err, &ite)
				assert.Equal(t, tt.from, ite.Current)
				assert.Equal(t, tt.to, ite.Target)
				assertUnchanged(t, o, tt.from, before)
			case forbidden:
				require.ErrorIs(t, err, ErrForbidden)
				assertUnchanged(t, o, tt.from, before)
			}
		})
	}
}

func assertUnchanged(t *testing.T, o *Order, status Status, historyLen int) {
	t.Helper()
	assert.Equal(t, status, o.Status)
	assert.Len(t, o.History, historyLen)
}

func TestTransition_UnknownStatus(t *testing.T) {
	o := orderAt(StatusPending, "")

	err := Transition(o, Status("refunded"), auth.Admin("coffee"), later)

	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
}

func TestTransition_HistoryTracksStatus(t *testing.T) {
	o := orderAt(StatusPending, "acc-1")
	admin := auth.Admin("coffee")

	for _, s := range []Status{StatusProcessing, StatusShipping, StatusCompleted} {
		require.NoError(t, Transition(o, s, admin, later))
		assert.Equal(t, o.Status, o.History[len(o.History)-1].Status)
	}
	assert.Len(t, o.History, 4)
	assert.Equal(t, StatusPending, o.History[0].Status)
}

func TestStart(t *testing.T) {
	o := &Order{}
	start(o, created)

	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.History, 1)
	assert.Equal(t, StatusRecord{Status: StatusPending, Timestamp: created}, o.History[0])
}
