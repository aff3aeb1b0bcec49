package confirmation

import (
	"context"
	"encoding/json"
	"net/http"
	"steamcommunity/internal/community"
)

type queryTimeResponse struct {
	Response struct {
		ServerTime json.Number `json:"server_time"`
	} `json:"response"`
}

// ServerTime asks the web API for the current unix time on the server.
func (m *Manager) ServerTime(ctx context.Context) (int64, error) {
	res, err := m.community.Execute(ctx, community.RequestDescriptor{
		Method: http.MethodPost,
		URL:    m.community.APIURL(queryTimePath),
		JSON:   true,
		Source: "confirmation",
	})
	if err != nil {
		return 0, err
	}

	var body queryTimeResponse
	err = res.JSON(&body)
	if err != nil {
		return 0, err
	}
	serverTime, err := body.Response.ServerTime.Int64()
	if err != nil {
		return 0, community.WrapError(community.KindMalformedPayload, "invalid server_time", err)
	}
	return serverTime, nil
}

// TimeOffset returns server time minus local time in seconds. The value is
// cached for Options.TimeOffsetLifetime.
func (m *Manager) TimeOffset(ctx context.Context) (int64, error) {
	m.offsetMu.Lock()
	defer m.offsetMu.Unlock()

	now := m.time.Now()
	if m.offsetValid && now.Sub(m.offsetFetched) < m.opts.TimeOffsetLifetime {
		return m.offset, nil
	}

	serverTime, err := m.ServerTime(ctx)
	if err != nil {
		m.tel.ReportWarning(report_manager_time_offset, err)
		return 0, err
	}
	m.offset = serverTime - now.Unix()
	m.offsetFetched = now
	m.offsetValid = true
	return m.offset, nil
}

// serverNow is the local clock shifted by the cached offset. Without an offset
// the local clock is used as is.
func (m *Manager) serverNow(ctx context.Context) int64 {
	offset, err := m.TimeOffset(ctx)
	if err != nil {
		m.debug("using local time, server time unavailable: %v", err)
		offset = 0
	}
	return m.time.Now().Unix() + offset
}
