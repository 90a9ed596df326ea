// Package rosterclient is the consumer side of the roster API: a typed HTTP
// client and an optimistic coordinator that applies drags locally before the
// server confirms them.
package rosterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the server root (e.g., "http://localhost:8080").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Cookies are sent with every request; typically the session cookie.
	Cookies []*http.Cookie
	// Logger may be nil.
	Logger *zap.Logger
}

// Client calls the roster and sync endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cookies    []*http.Cookie
	log        *zap.Logger
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("rosterclient: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("rosterclient: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		cookies:    config.Cookies,
		log:        logger,
	}, nil
}

// PoolMove places a pool member into a squad.
type PoolMove struct {
	MemberID primitive.ObjectID
	SquadID  primitive.ObjectID
	Role     string
}

// SquadMove re-parents a member from one squad to another.
type SquadMove struct {
	MemberID    primitive.ObjectID
	FromSquadID primitive.ObjectID
	ToSquadID   primitive.ObjectID
}

// Ack is a successful write: the server's summary and the activity's new
// version token.
type Ack struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
	Version string `json:"-"`
}

// Feed is one kind's slice of a poll response. Rows are left raw so callers
// decode only the kinds they track.
type Feed struct {
	Updated []json.RawMessage  `json:"updated"`
	Deleted []models.Tombstone `json:"deleted"`
}

// PollResult mirrors the poll endpoint's response.
type PollResult struct {
	Members         Feed      `json:"members"`
	Activities      Feed      `json:"activities"`
	Announcements   Feed      `json:"announcements"`
	Squads          Feed      `json:"squads"`
	Memberships     Feed      `json:"memberships"`
	LatestTimestamp time.Time `json:"latestTimestamp"`
}

// Roster reads an activity's roster. The view's Version is the ETag.
func (c *Client) Roster(ctx context.Context, activityID primitive.ObjectID) (assign.RosterView, error) {
	var view assign.RosterView
	hdr, err := c.do(ctx, http.MethodGet, c.activityPath(activityID, "/roster"), "", nil, &view)
	if err != nil {
		return assign.RosterView{}, err
	}
	if etag := hdr.Get("ETag"); etag != "" {
		view.Version = etag
	}
	return view, nil
}

type poolMoveItem struct {
	UserID string `json:"userId"`
	TeamID string `json:"teamId"`
	Role   string `json:"role,omitempty"`
}

type squadMoveItem struct {
	UserID     string `json:"userId"`
	FromTeamID string `json:"fromTeamId"`
	TeamID     string `json:"teamId"`
}

type memberItem struct {
	UserID string `json:"userId"`
}

type batch[T any] struct {
	Moves []T `json:"moves"`
}

// PoolToSquad issues one batched pool-to-squad request. ifMatch may be empty
// for an unconditional write.
func (c *Client) PoolToSquad(ctx context.Context, activityID primitive.ObjectID, ifMatch string, moves []PoolMove) (Ack, error) {
	body := batch[poolMoveItem]{Moves: make([]poolMoveItem, len(moves))}
	for i, m := range moves {
		body.Moves[i] = poolMoveItem{UserID: m.MemberID.Hex(), TeamID: m.SquadID.Hex(), Role: m.Role}
	}
	return c.write(ctx, c.activityPath(activityID, "/moves/pool-to-squad"), ifMatch, body)
}

// SquadToSquad issues one batched squad-to-squad request.
func (c *Client) SquadToSquad(ctx context.Context, activityID primitive.ObjectID, ifMatch string, moves []SquadMove) (Ack, error) {
	body := batch[squadMoveItem]{Moves: make([]squadMoveItem, len(moves))}
	for i, m := range moves {
		body.Moves[i] = squadMoveItem{UserID: m.MemberID.Hex(), FromTeamID: m.FromSquadID.Hex(), TeamID: m.ToSquadID.Hex()}
	}
	return c.write(ctx, c.activityPath(activityID, "/moves/squad-to-squad"), ifMatch, body)
}

// SquadToPool issues one batched squad-to-pool request.
func (c *Client) SquadToPool(ctx context.Context, activityID primitive.ObjectID, ifMatch string, memberIDs []primitive.ObjectID) (Ack, error) {
	body := batch[memberItem]{Moves: make([]memberItem, len(memberIDs))}
	for i, id := range memberIDs {
		body.Moves[i] = memberItem{UserID: id.Hex()}
	}
	return c.write(ctx, c.activityPath(activityID, "/moves/squad-to-pool"), ifMatch, body)
}

// Poll fetches every change strictly after since.
func (c *Client) Poll(ctx context.Context, since time.Time) (PollResult, error) {
	var res PollResult
	q := url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}}
	_, err := c.do(ctx, http.MethodGet, "/api/sync/poll?"+q.Encode(), "", nil, &res)
	return res, err
}

func (c *Client) write(ctx context.Context, path, ifMatch string, body any) (Ack, error) {
	var ack Ack
	hdr, err := c.do(ctx, http.MethodPost, path, ifMatch, body, &ack)
	if err != nil {
		return Ack{}, err
	}
	ack.Version = hdr.Get("ETag")
	return ack, nil
}

func (c *Client) activityPath(activityID primitive.ObjectID, suffix string) string {
	return "/api/activities/" + activityID.Hex() + suffix
}

// do sends one request and decodes a 2xx body into out. Error responses come
// back as *apperr.Error rebuilt from the status and the error envelope.
func (c *Client) do(ctx context.Context, method, path, ifMatch string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("rosterclient: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("rosterclient: build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rosterclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rosterclient: read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env apperr.Body
		_ = json.Unmarshal(raw, &env)
		msg := env.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		c.log.Debug("roster request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("reason", env.Error.Reason))
		return resp.Header, apperr.FromStatus(resp.StatusCode, env.Error.Reason, msg)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("rosterclient: decode %s: %w", path, err)
		}
	}
	return resp.Header, nil
}
