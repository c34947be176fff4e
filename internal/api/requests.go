package api

import (
	"net/http"
	"net/url"
)

// ListProfilesRequest fetches shared connection profiles from a remote catalogue
func ListProfilesRequest(team string) Request {
	req := Request{
		Endpoint: "/connections",
		Method:   http.MethodGet,
		Encoding: QueryEncoding,
	}
	if team != "" {
		req.Params = map[string]interface{}{"team": team}
	}
	return req
}

// GetProfileRequest fetches one shared profile by name
func GetProfileRequest(name string) Request {
	return Request{
		Endpoint: "/connections/" + url.PathEscape(name),
		Method:   http.MethodGet,
	}
}
