package rosterclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/rosterclient"
	"github.com/dalemusser/rosterhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := rosterclient.NewClient(rosterclient.ClientConfig{})
	assert.Error(t, err)
}

func TestClient_StaleIfMatchIsPrecondition(t *testing.T) {
	e := newEnv()
	c := e.server(t, testutil.ModeratorUser())
	ctx := context.Background()

	view, err := c.Roster(ctx, e.activity.ID)
	require.NoError(t, err)

	ack, err := c.PoolToSquad(ctx, e.activity.ID, view.Version, []rosterclient.PoolMove{{MemberID: e.pool[0], SquadID: e.alpha.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Count)
	assert.NotEqual(t, view.Version, ack.Version)

	_, err = c.SquadToPool(ctx, e.activity.ID, view.Version, []primitive.ObjectID{e.pool[0]})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, apperr.ReasonPrecondition, ae.Reason)
}

func TestClient_SourceMismatchIsConflict(t *testing.T) {
	e := newEnv()
	c := e.server(t, testutil.ModeratorUser())

	_, err := c.SquadToSquad(context.Background(), e.activity.ID, "", []rosterclient.SquadMove{
		{MemberID: e.squadded, FromSquadID: e.bravo.ID, ToSquadID: e.alpha.ID},
	})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, apperr.ReasonSourceMismatch, ae.Reason)
}

func TestClient_PollSeesMove(t *testing.T) {
	e := newEnv()
	c := e.server(t, testutil.ModeratorUser())
	ctx := context.Background()
	since := time.Now().UTC().Add(-time.Minute)

	_, err := c.SquadToPool(ctx, e.activity.ID, "", []primitive.ObjectID{e.squadded})
	require.NoError(t, err)

	res, err := c.Poll(ctx, since)
	require.NoError(t, err)
	require.Len(t, res.Memberships.Updated, 1)
	require.Len(t, res.Activities.Updated, 1)
	assert.True(t, res.LatestTimestamp.After(since))

	var row struct {
		MemberID primitive.ObjectID `json:"member_id"`
	}
	require.NoError(t, json.Unmarshal(res.Memberships.Updated[0], &row))
	assert.Equal(t, e.squadded, row.MemberID)
}

func TestClient_PlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := rosterclient.NewClient(rosterclient.ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Roster(context.Background(), primitive.NewObjectID())
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindForbidden, ae.Kind)
	assert.Equal(t, "unauthorized", ae.Message)
}
