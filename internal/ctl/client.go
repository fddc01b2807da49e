package ctl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// slowClient is used for requests that propagate or search for passes.
var slowClient = &http.Client{Timeout: 90 * time.Second}

// apiError carries the daemon's error message for a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// getJSON sends a GET request and decodes the JSON response into dst.
func getJSON(baseURL, path string, dst any) error {
	return getWith(httpClient, baseURL, path, dst)
}

func getWith(c *http.Client, baseURL, path string, dst any) error {
	resp, err := c.Get(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, dst)
}

// getRaw sends a GET request and returns the status and raw body.
func getRaw(baseURL, path string, accept string) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return 0, nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

// postJSON sends a POST request with a JSON body and decodes the response.
func postJSON(c *http.Client, baseURL, path string, body, dst any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	resp, err := c.Post(strings.TrimRight(baseURL, "/")+path, "application/json", reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, dst)
}

// decodeJSON decodes a JSON response body into dst. Non-2xx responses
// become an *apiError holding the daemon's message.
func decodeJSON(resp *http.Response, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		var body struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &body) == nil && body.Error != "" {
			msg = body.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// printJSON prints v as indented JSON.
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(b))
	return nil
}

// ResolveID turns a NORAD id or a satellite name into a catalog id.
func ResolveID(baseURL, arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		return id, nil
	}
	var byName map[string]int
	if err := getJSON(baseURL, "/api/satellites/by-name", &byName); err != nil {
		return 0, err
	}
	if id, ok := byName[strings.ToUpper(strings.TrimSpace(arg))]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("no tracked satellite named %q", arg)
}

// observerQuery adds lat/lon to v when set.
func observerQuery(v url.Values, lat, lon *float64) {
	if lat != nil {
		v.Set("lat", strconv.FormatFloat(*lat, 'f', -1, 64))
	}
	if lon != nil {
		v.Set("lon", strconv.FormatFloat(*lon, 'f', -1, 64))
	}
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}
