package community

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// memberPageSize is the cursor-pagination page size for the member
// collection. Upstream caps pages at 100.
const memberPageSize = 100

// Transport is the slice of the HTTP client the API layer needs.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	Mutate(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// API wraps the transport client with typed endpoint methods. It is a
// stateless lens over upstream state: nothing here is stored beyond
// the transport cache.
type API struct {
	tc Transport
}

// NewAPI creates an API over the given transport.
func NewAPI(tc Transport) *API {
	return &API{tc: tc}
}

// listEnvelope is the upstream collection wrapper. Collections arrive
// as {"data": [...]} with optional pagination fields; some deployments
// return bare arrays, which decodeList tolerates.
type listEnvelope struct {
	Data    json.RawMessage `json:"data"`
	HasMore bool            `json:"has_more"`
}

// decodeList decodes a collection response into out, accepting either
// the {"data": [...]} envelope or a bare JSON array.
func decodeList(raw json.RawMessage, out any) (hasMore bool, err error) {
	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		return env.HasMore, json.Unmarshal(env.Data, out)
	}
	return false, json.Unmarshal(raw, out)
}

// ListChannels fetches all channels.
func (a *API) ListChannels(ctx context.Context) ([]Channel, error) {
	raw, err := a.tc.Get(ctx, "/channels", nil)
	if err != nil {
		return nil, err
	}
	var channels []Channel
	if _, err := decodeList(raw, &channels); err != nil {
		return nil, fmt.Errorf("decoding channel list: %w", err)
	}
	return channels, nil
}

// ListThreads fetches the threads of one channel. ChannelID is filled
// in on each thread when upstream omits it.
func (a *API) ListThreads(ctx context.Context, channelID string) ([]Thread, error) {
	raw, err := a.tc.Get(ctx, "/channels/"+channelID+"/threads", nil)
	if err != nil {
		return nil, err
	}
	var threads []Thread
	if _, err := decodeList(raw, &threads); err != nil {
		return nil, fmt.Errorf("decoding threads for channel %s: %w", channelID, err)
	}
	for i := range threads {
		if threads[i].ChannelID == "" {
			threads[i].ChannelID = channelID
		}
	}
	return threads, nil
}

// ListAllMembers follows the member collection's "starting after"
// cursor to exhaustion and returns the full list. The upstream API has
// no name search, so resolution and synthesis both work from this
// full fetch — masked by the transport cache within the TTL.
func (a *API) ListAllMembers(ctx context.Context) ([]User, error) {
	var all []User
	cursor := ""
	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(memberPageSize))
		if cursor != "" {
			q.Set("starting_after", cursor)
		}
		raw, err := a.tc.Get(ctx, "/users", q)
		if err != nil {
			return nil, err
		}
		var page []User
		hasMore, err := decodeList(raw, &page)
		if err != nil {
			return nil, fmt.Errorf("decoding member page: %w", err)
		}
		all = append(all, page...)
		if !hasMore || len(page) == 0 {
			return all, nil
		}
		cursor = page[len(page)-1].ID
	}
}

// GetUser fetches one user by ID. A malformed-but-well-shaped ID
// yields the upstream 404, not a local validation error.
func (a *API) GetUser(ctx context.Context, id string) (*User, error) {
	raw, err := a.tc.Get(ctx, "/users/"+id, nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decoding user %s: %w", id, err)
	}
	return &u, nil
}

// LookupUserByEmail queries the exact-match email filter endpoint.
func (a *API) LookupUserByEmail(ctx context.Context, email string) ([]User, error) {
	q := url.Values{}
	q.Set("email", email)
	raw, err := a.tc.Get(ctx, "/users", q)
	if err != nil {
		return nil, err
	}
	var users []User
	if _, err := decodeList(raw, &users); err != nil {
		return nil, fmt.Errorf("decoding email lookup: %w", err)
	}
	return users, nil
}

// ListEvents fetches all events.
func (a *API) ListEvents(ctx context.Context) ([]Event, error) {
	raw, err := a.tc.Get(ctx, "/events", nil)
	if err != nil {
		return nil, err
	}
	var events []Event
	if _, err := decodeList(raw, &events); err != nil {
		return nil, fmt.Errorf("decoding event list: %w", err)
	}
	return events, nil
}

// Attendance fetches the attendance sub-resource of one event.
func (a *API) Attendance(ctx context.Context, eventID string) ([]AttendanceRecord, error) {
	raw, err := a.tc.Get(ctx, "/events/"+eventID+"/attendance", nil)
	if err != nil {
		return nil, err
	}
	var records []AttendanceRecord
	if _, err := decodeList(raw, &records); err != nil {
		return nil, fmt.Errorf("decoding attendance for event %s: %w", eventID, err)
	}
	return records, nil
}

// ListCourses fetches all courses.
func (a *API) ListCourses(ctx context.Context) ([]Course, error) {
	raw, err := a.tc.Get(ctx, "/courses", nil)
	if err != nil {
		return nil, err
	}
	var courses []Course
	if _, err := decodeList(raw, &courses); err != nil {
		return nil, fmt.Errorf("decoding course list: %w", err)
	}
	return courses, nil
}

// ListNotifications fetches community notifications.
func (a *API) ListNotifications(ctx context.Context) ([]Notification, error) {
	raw, err := a.tc.Get(ctx, "/notifications", nil)
	if err != nil {
		return nil, err
	}
	var notes []Notification
	if _, err := decodeList(raw, &notes); err != nil {
		return nil, fmt.Errorf("decoding notifications: %w", err)
	}
	return notes, nil
}

// CreateThread posts a new thread into a channel.
func (a *API) CreateThread(ctx context.Context, channelID, title, content string) (*Thread, error) {
	body := map[string]string{"title": title, "content": content}
	raw, err := a.tc.Mutate(ctx, "PUT", "/channels/"+channelID+"/threads", body)
	if err != nil {
		return nil, err
	}
	var t Thread
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decoding created thread: %w", err)
	}
	if t.ChannelID == "" {
		t.ChannelID = channelID
	}
	return &t, nil
}

// SendDirectMessage sends a DM to a user.
func (a *API) SendDirectMessage(ctx context.Context, userID, message string) error {
	body := map[string]string{"message": message}
	_, err := a.tc.Mutate(ctx, "PUT", "/users/"+userID+"/messages", body)
	return err
}

// CreateEvent schedules a new event.
func (a *API) CreateEvent(ctx context.Context, name string, startsAt string, durationMinutes int) (*Event, error) {
	body := map[string]any{"name": name, "starts_at": startsAt}
	if durationMinutes > 0 {
		body["duration_minutes"] = durationMinutes
	}
	raw, err := a.tc.Mutate(ctx, "PUT", "/events", body)
	if err != nil {
		return nil, err
	}
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decoding created event: %w", err)
	}
	return &e, nil
}

// RemoveMember removes a user from the community.
func (a *API) RemoveMember(ctx context.Context, userID string) error {
	_, err := a.tc.Mutate(ctx, "DELETE", "/users/"+userID, nil)
	return err
}

// ReactivateMember re-enables a deactivated member.
func (a *API) ReactivateMember(ctx context.Context, userID string) error {
	_, err := a.tc.Mutate(ctx, "POST", "/users/"+userID+"/reactivate", nil)
	return err
}
