package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository/memory"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingNotifier struct{ ids []string }

func (n *countingNotifier) EventChanged(_ context.Context, id string) { n.ids = append(n.ids, id) }

func input(name string, public bool, in time.Duration) Input {
	return Input{
		Name:             name,
		Description:      "an evening of music",
		Date:             time.Now().Add(in).UTC(),
		IsPublic:         public,
		OrganizationName: "Acme Live",
		Location:         domain.Location{City: "Lisbon"},
		Tickets: []domain.TicketClass{
			{Type: domain.TicketStandard, PriceCents: 2000, AvailableQuantity: 5},
		},
	}
}

func TestCreateGetList(t *testing.T) {
	ctx := context.Background()
	n := &countingNotifier{}
	s := New(memory.NewStore(), nil, n, discard, Config{})

	late, err := s.Create(ctx, "org-1", input("Late Show", true, 72*time.Hour))
	require.NoError(t, err)
	early, err := s.Create(ctx, "org-1", input("Early Show", true, 24*time.Hour))
	require.NoError(t, err)
	hidden, err := s.Create(ctx, "org-1", input("Private Party", false, 48*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "org-1", late.CreatedBy)
	assert.Len(t, n.ids, 3)

	public, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, early.ID, public[0].ID)
	assert.Equal(t, late.ID, public[1].ID)

	all, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.Get(ctx, hidden.ID, false)
	assert.ErrorIs(t, err, ErrEventNotFound)

	got, err := s.Get(ctx, hidden.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "Private Party", got.Name)
}

func TestUpdateDeleteMissingEventIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStore(), nil, nil, discard, Config{})

	_, err := s.Update(ctx, "u", "nope", input("x", true, time.Hour))
	assert.ErrorIs(t, err, ErrEventNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "u", "nope"), ErrEventNotFound)

	_, err = s.Get(ctx, "nope", true)
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = s.Buyers(ctx, "u", "nope")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestUpdateReplacesFieldsAndKeepsOwner(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStore(), nil, nil, discard, Config{})

	e, err := s.Create(ctx, "org-1", input("Gig", true, time.Hour))
	require.NoError(t, err)

	in := input("Gig (moved)", false, 2*time.Hour)
	in.Tickets = append(in.Tickets, domain.TicketClass{Type: domain.TicketVIP, PriceCents: 9000, AvailableQuantity: 2})

	got, err := s.Update(ctx, "someone-else", e.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Gig (moved)", got.Name)
	assert.Equal(t, "org-1", got.CreatedBy)
	assert.False(t, got.IsPublic)
	assert.Len(t, got.Tickets, 2)
	assert.Equal(t, e.Version+1, got.Version)
}

func TestOwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStore(), nil, nil, discard, Config{EnforceOwnership: true})

	e, err := s.Create(ctx, "org-1", input("Gig", true, time.Hour))
	require.NoError(t, err)

	_, err = s.Update(ctx, "org-2", e.ID, input("Hijacked", true, time.Hour))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, s.Delete(ctx, "org-2", e.ID), ErrForbidden)
	_, err = s.Buyers(ctx, "org-2", e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.NoError(t, s.Delete(ctx, "org-1", e.ID))
}

func TestBuyersNarrowsTicketsToEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	s := New(store, nil, nil, discard, Config{})

	e, err := s.Create(ctx, "org-1", input("Gig", true, time.Hour))
	require.NoError(t, err)

	buyer := &domain.User{
		Email: "fan@example.com",
		Name:  "Fan",
		BoughtTickets: []domain.PurchasedTicket{
			{Event: domain.EventRef{EventID: e.ID}, Type: domain.TicketStandard, Quantity: 2},
			{Event: domain.EventRef{EventID: "other"}, Type: domain.TicketVIP, Quantity: 1},
		},
	}
	require.NoError(t, store.Users().Create(ctx, buyer))
	require.NoError(t, store.Users().Create(ctx, &domain.User{Email: "nobody@example.com"}))

	buyers, err := s.Buyers(ctx, "org-1", e.ID)
	require.NoError(t, err)
	require.Len(t, buyers, 1)
	assert.Equal(t, buyer.ID, buyers[0].ID)
	require.Len(t, buyers[0].Tickets, 1)
	assert.Equal(t, 2, buyers[0].Tickets[0].Quantity)
}

func TestCachedReadsAreInvalidatedOnChange(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cache := redisrepo.New(rdb)
	notifier := redisrepo.NewChangeNotifier(cache, redisrepo.NewEventsPubSub(rdb), discard)
	s := New(memory.NewStore(), cache, notifier, discard, Config{})

	e, err := s.Create(ctx, "org-1", input("Gig", true, time.Hour))
	require.NoError(t, err)

	_, err = s.Get(ctx, e.ID, false)
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisrepo.KeyEvent(e.ID)))

	list, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, mr.Exists(redisrepo.KeyEventList(true)))

	_, err = s.Update(ctx, "org-1", e.ID, input("Gig Renamed", true, time.Hour))
	require.NoError(t, err)
	assert.False(t, mr.Exists(redisrepo.KeyEvent(e.ID)))
	assert.False(t, mr.Exists(redisrepo.KeyEventList(true)))

	got, err := s.Get(ctx, e.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Gig Renamed", got.Name)
}
