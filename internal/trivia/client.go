// Package trivia fetches question batches from The Trivia API
// (https://the-trivia-api.com/docs/v2/).
package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"quiztrack-service/internal/domain"
)

const (
	// DefaultBaseURL is the public endpoint of The Trivia API.
	DefaultBaseURL = "https://the-trivia-api.com"

	defaultLimit = 10
)

// Question mirrors one element of the v2 questions payload.
type Question struct {
	ID               string       `json:"id"`
	Category         string       `json:"category"`
	CorrectAnswer    string       `json:"correctAnswer"`
	IncorrectAnswers []string     `json:"incorrectAnswers"`
	Question         QuestionText `json:"question"`
	Difficulty       string       `json:"difficulty"`
}

// QuestionText wraps the nested question text object.
type QuestionText struct {
	Text string `json:"text"`
}

// Client talks to the trivia endpoint. The zero http.Client is usable; pass
// one with a Timeout in production so hangs classify as domain.ErrTimeout.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against DefaultBaseURL.
func NewClient(httpClient *http.Client) *Client {
	return NewClientWithBaseURL(httpClient, DefaultBaseURL)
}

// NewClientWithBaseURL builds a Client against a custom endpoint.
func NewClientWithBaseURL(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// FetchQuestions requests amount questions. A non-positive amount falls back
// to the default batch size. Failures come back classified into the domain
// error taxonomy.
func (c *Client) FetchQuestions(ctx context.Context, amount int) ([]Question, error) {
	if amount <= 0 {
		amount = defaultLimit
	}

	reqURL := c.baseURL + "/v2/questions?limit=" + strconv.Itoa(amount)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &domain.NetworkError{Message: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode)
	}

	var payload []Question
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &domain.NetworkError{Message: "decode response: " + err.Error()}
	}
	return payload, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ErrTimeout
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return domain.ErrNoConnection
	}
	return domain.ErrNoConnection
}

// classifyStatus keeps upstream failures upstream: any non-200, a 404
// included, is a NetworkError carrying the status code, never one of the
// quiz-level sentinels.
func classifyStatus(code int) error {
	if code >= 500 && code <= 599 {
		return &domain.NetworkError{Code: code, Message: http.StatusText(code)}
	}
	return &domain.NetworkError{Code: code, Message: "unexpected status " + strconv.Itoa(code)}
}
