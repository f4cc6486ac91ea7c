package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext holds the state of one scenario against a running server.
type TestContext struct {
	BaseURL string
	client  *http.Client

	lastStatus int
	lastBody   []byte
	caseRef    string
	created    map[string]string
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		created: map[string]string{},
	}
}

// Reset clears per-scenario state and starts a fresh case, so scenarios do
// not see each other's traces on a shared server.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.created = map[string]string{}
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	tc.caseRef = "Encounter/e2e-" + hex.EncodeToString(buf)
}

func (tc *TestContext) CaseRef() string { return tc.caseRef }

func (tc *TestContext) Do(method, path, body string) error {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/fhir+json")
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) LastStatus() int { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte { return tc.lastBody }
func (tc *TestContext) LastBodyString() string {
	return string(bytes.TrimSpace(tc.lastBody))
}

// RememberCreated records the id the server assigned to the last created
// resource of rt.
func (tc *TestContext) RememberCreated(rt string) error {
	var res struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(tc.lastBody, &res); err != nil {
		return fmt.Errorf("decode created %s: %w", rt, err)
	}
	if res.ID == "" {
		return fmt.Errorf("created %s has no id", rt)
	}
	tc.created[rt] = res.ID
	return nil
}

func (tc *TestContext) Created(rt string) (string, bool) {
	id, ok := tc.created[rt]
	return id, ok
}
