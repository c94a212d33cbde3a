package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/arc-research/arc-pipeline/internal/datahub"
)

const (
	DefaultSECTickersURL     = "https://www.sec.gov"
	DefaultSECSubmissionsURL = "https://data.sec.gov"
)

// SEC serves EDGAR filing histories. The ticker to CIK map is downloaded on
// first use and kept for the life of the process.
type SEC struct {
	tickers     *client
	submissions *client

	mu   sync.Mutex
	ciks map[string]int64
}

func NewSEC(tickersURL, submissionsURL, userAgent string, httpClient *http.Client) *SEC {
	if tickersURL == "" {
		tickersURL = DefaultSECTickersURL
	}
	if submissionsURL == "" {
		submissionsURL = DefaultSECSubmissionsURL
	}
	tickers := newClient(datahub.SourceSEC, tickersURL, "", "", httpClient)
	tickers.userAgent = userAgent
	submissions := newClient(datahub.SourceSEC, submissionsURL, "", "", httpClient)
	submissions.userAgent = userAgent
	return &SEC{tickers: tickers, submissions: submissions}
}

func (s *SEC) Name() string { return datahub.SourceSEC }

func (s *SEC) Fetch(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	if method != datahub.MethodFilings {
		return nil, unsupported(datahub.SourceSEC, method)
	}
	ticker, err := requireParam(params, "symbol")
	if err != nil {
		return nil, err
	}
	cik, err := s.lookupCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return s.submissions.getJSON(ctx, fmt.Sprintf("/submissions/CIK%010d.json", cik), nil)
}

func (s *SEC) lookupCIK(ctx context.Context, ticker string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ciks == nil {
		ciks, err := s.loadCIKs(ctx)
		if err != nil {
			return 0, err
		}
		s.ciks = ciks
	}
	cik, ok := s.ciks[strings.ToUpper(ticker)]
	if !ok {
		return 0, datahub.Permanent(fmt.Errorf("sec: no cik for ticker %q", ticker))
	}
	return cik, nil
}

func (s *SEC) loadCIKs(ctx context.Context) (map[string]int64, error) {
	raw, err := s.tickers.getJSON(ctx, "/files/company_tickers.json", nil)
	if err != nil {
		return nil, err
	}
	var entries map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, datahub.Permanent(fmt.Errorf("decode sec ticker map: %w", err))
	}
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		out[strings.ToUpper(strings.TrimSpace(e.Ticker))] = e.CIK
	}
	return out, nil
}
