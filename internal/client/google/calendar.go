package google

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"davinci-agent/internal/model"
)

// 新建日程：https://developers.google.com/calendar/api/v3/reference/events/insert
type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type conferenceData struct {
	CreateRequest struct {
		RequestID             string `json:"requestId"`
		ConferenceSolutionKey struct {
			Type string `json:"type"`
		} `json:"conferenceSolutionKey"`
	} `json:"createRequest"`
}

type eventReq struct {
	Summary        string          `json:"summary"`
	Description    string          `json:"description,omitempty"`
	Location       string          `json:"location,omitempty"`
	Start          eventTime       `json:"start"`
	End            eventTime       `json:"end"`
	ConferenceData *conferenceData `json:"conferenceData,omitempty"`
}

// Event 已创建的日程
type Event struct {
	ID          string `json:"id"`
	HTMLLink    string `json:"htmlLink"`
	HangoutLink string `json:"hangoutLink"`
}

// CreateEvent 在主日历新建日程；AddMeet 为真时请求生成 Google Meet 链接
func (c *Client) CreateEvent(ctx context.Context, creds model.Credentials, p model.EventParams) (Event, error) {
	req := eventReq{
		Summary:     p.Summary,
		Description: p.Description,
		Location:    p.Location,
		Start:       eventTime{DateTime: p.Start},
		End:         eventTime{DateTime: p.End},
	}
	u := c.cfg.CalendarBaseURL + "/calendars/primary/events"
	if p.AddMeet {
		cd := &conferenceData{}
		cd.CreateRequest.RequestID = "meet-" + strings.ReplaceAll(strings.ToLower(p.Summary), " ", "-") + "-" + uuid.NewString()[:8]
		cd.CreateRequest.ConferenceSolutionKey.Type = "hangoutsMeet"
		req.ConferenceData = cd
		u += "?conferenceDataVersion=1"
	}
	var out Event
	if err := c.doJSON(ctx, creds, http.MethodPost, u, req, &out, "calendar insert"); err != nil {
		return Event{}, err
	}
	return out, nil
}
