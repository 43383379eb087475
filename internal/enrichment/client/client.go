// Package client provides the HTTP client for the DataNewton company registry API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crmbot/platform/logger"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.datanewton.ru/v1"
	defaultHTTPTimeout = 10 * time.Second
	arbitrationLimit   = 1000
)

var (
	// ErrNotFound means the registry has no company for the tax id.
	ErrNotFound = errors.New("datanewton: company not found")
	// ErrTierLimited means the API key's plan does not include the requested block.
	ErrTierLimited = errors.New("datanewton: not available on current plan")
)

// FlexNumber handles JSON values that can be either string or number.
type FlexNumber float64

func (f *FlexNumber) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexNumber(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		str = strings.ReplaceAll(strings.TrimSpace(str), " ", "")
		if str == "" {
			*f = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(str, ",", "."), 64)
		if err != nil {
			return err
		}
		*f = FlexNumber(parsed)
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into FlexNumber", string(data))
}

// Client handles DataNewton requests.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a DataNewton client. rps <= 0 disables client-side throttling.
func New(baseURL, apiKey string, rps float64, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(limit, 1),
		log:        log,
	}
}

// Okved is one economic activity classification entry.
type Okved struct {
	Main  bool   `json:"main"`
	Code  string `json:"code"`
	Value string `json:"value"`
}

// Counterparty holds the registry facts of one company.
type Counterparty struct {
	Name     string
	OGRN     string
	Region   string
	Email    string
	Okved    *Okved
	Bankrupt *bool
}

type counterpartyResponse struct {
	INN     string `json:"inn"`
	OGRN    string `json:"ogrn"`
	Company *struct {
		CompanyNames struct {
			ShortName string `json:"short_name"`
			FullName  string `json:"full_name"`
		} `json:"company_names"`
		Okveds  []Okved `json:"okveds"`
		Address struct {
			Region struct {
				Name string `json:"name"`
			} `json:"region"`
		} `json:"address"`
		Contacts []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"contacts"`
	} `json:"company"`
	Individual *struct {
		FIO    string  `json:"fio"`
		Okveds []Okved `json:"okveds"`
	} `json:"individual"`
	NegativeLists *struct {
		Bankruptcy *struct {
			Active bool `json:"active"`
		} `json:"bankruptcy"`
	} `json:"negative_lists"`
}

// Counterparty fetches registry facts. Returns ErrNotFound for unknown tax ids.
func (c *Client) Counterparty(ctx context.Context, inn string) (*Counterparty, error) {
	params := url.Values{}
	params.Set("inn", inn)
	for _, block := range []string{"ADDRESS_BLOCK", "MANAGER_BLOCK", "OKVED_BLOCK", "CONTACT_BLOCK", "NEGATIVE_LISTS_BLOCK"} {
		params.Add("filters", block)
	}

	var payload counterpartyResponse
	if err := c.get(ctx, "/counterparty", params, &payload); err != nil {
		return nil, err
	}

	result := &Counterparty{OGRN: payload.OGRN}
	var okveds []Okved
	switch {
	case payload.Company != nil:
		result.Name = payload.Company.CompanyNames.ShortName
		if result.Name == "" {
			result.Name = payload.Company.CompanyNames.FullName
		}
		result.Region = payload.Company.Address.Region.Name
		for _, ct := range payload.Company.Contacts {
			if ct.Type == "email" && ct.Value != "" {
				result.Email = ct.Value
				break
			}
		}
		okveds = payload.Company.Okveds
	case payload.Individual != nil:
		result.Name = payload.Individual.FIO
		okveds = payload.Individual.Okveds
	default:
		return nil, ErrNotFound
	}

	result.Okved = mainOkved(okveds)
	if payload.NegativeLists != nil && payload.NegativeLists.Bankruptcy != nil {
		active := payload.NegativeLists.Bankruptcy.Active
		result.Bankrupt = &active
	}
	return result, nil
}

// Classification fetches only the activity block; used when the main
// counterparty response lacked a main code.
func (c *Client) Classification(ctx context.Context, inn string) (*Okved, error) {
	params := url.Values{}
	params.Set("inn", inn)
	params.Set("filters", "OKVED_BLOCK")

	var payload counterpartyResponse
	if err := c.get(ctx, "/counterparty", params, &payload); err != nil {
		return nil, err
	}
	switch {
	case payload.Company != nil:
		return mainOkved(payload.Company.Okveds), nil
	case payload.Individual != nil:
		return mainOkved(payload.Individual.Okveds), nil
	}
	return nil, ErrNotFound
}

// Financials holds figures in thousands of rubles for the two latest reporting years.
type Financials struct {
	Year           int
	RevenueCurrent *int64
	RevenuePrior   *int64
	Equity         *int64
	FixedAssets    *int64
	Receivables    *int64
	Payables       *int64
}

type indicator struct {
	Name string                `json:"name"`
	Code string                `json:"code"`
	Sum  map[string]FlexNumber `json:"sum"`
}

type financeResponse struct {
	AvailableCount *int `json:"available_count"`
	FinResults     *struct {
		Indicators []indicator `json:"indicators"`
	} `json:"fin_results"`
	Balances *struct {
		Indicators []indicator `json:"indicators"`
	} `json:"balances"`
}

// Finance fetches the income statement and balance sheet.
// Returns ErrTierLimited when the plan only reports the remaining quota.
func (c *Client) Finance(ctx context.Context, inn string) (*Financials, error) {
	params := url.Values{}
	params.Set("inn", inn)

	var payload financeResponse
	if err := c.get(ctx, "/finance", params, &payload); err != nil {
		return nil, err
	}
	if payload.FinResults == nil && payload.Balances == nil {
		if payload.AvailableCount != nil {
			return nil, ErrTierLimited
		}
		return &Financials{}, nil
	}

	out := &Financials{}
	if payload.FinResults != nil {
		if rev := findIndicator(payload.FinResults.Indicators, "2110", "выручка"); rev != nil {
			cur := latestYear(rev.Sum)
			if cur != "" {
				out.Year, _ = strconv.Atoi(cur)
				out.RevenueCurrent = thousands(rev.Sum, cur)
				out.RevenuePrior = thousands(rev.Sum, previousYear(cur))
			}
		}
	}
	if payload.Balances != nil {
		ind := payload.Balances.Indicators
		year := strconv.Itoa(out.Year)
		pick := func(code, name string) *int64 {
			i := findIndicator(ind, code, name)
			if i == nil {
				return nil
			}
			y := year
			if out.Year == 0 {
				y = latestYear(i.Sum)
			}
			return thousands(i.Sum, y)
		}
		out.Equity = pick("1300", "капитал и резервы")
		out.FixedAssets = pick("1150", "основные средства")
		out.Receivables = pick("1230", "дебиторская задолженность")
		out.Payables = pick("1520", "кредиторская задолженность")
	}
	return out, nil
}

// GovContracts is the all-time contract total in rubles and the product
// class (OKPD2) with the largest contract sum.
type GovContracts struct {
	TotalSum     *int64
	TopOKPD2     string
	TopOKPD2Name string
}

type govContractsResponse struct {
	SuppliersStat *struct {
		Stat []govStat `json:"stat"`
	} `json:"suppliers_stat"`
	CustomersStat *struct {
		Stat []govStat `json:"stat"`
	} `json:"customers_stat"`
}

type govStat struct {
	Sum       FlexNumber `json:"sum"`
	OKPD2Code string     `json:"okpd2_code"`
	OKPD2Name string     `json:"okpd2_name"`
}

// GovContracts sums supplier and customer contract statistics.
func (c *Client) GovContracts(ctx context.Context, inn, ogrn string) (*GovContracts, error) {
	params := url.Values{}
	if ogrn != "" {
		params.Set("ogrn", ogrn)
	} else {
		params.Set("inn", inn)
	}

	var payload govContractsResponse
	if err := c.get(ctx, "/governmentContractsStat", params, &payload); err != nil {
		return nil, err
	}

	var stats []govStat
	if payload.SuppliersStat != nil {
		stats = append(stats, payload.SuppliersStat.Stat...)
	}
	if payload.CustomersStat != nil {
		stats = append(stats, payload.CustomersStat.Stat...)
	}
	if len(stats) == 0 {
		return &GovContracts{}, nil
	}

	var total float64
	var top govStat
	for _, s := range stats {
		total += float64(s.Sum)
		if s.OKPD2Code != "" && s.Sum > top.Sum {
			top = s
		}
	}
	sum := int64(total)
	return &GovContracts{TotalSum: &sum, TopOKPD2: top.OKPD2Code, TopOKPD2Name: top.OKPD2Name}, nil
}

// Arbitration summarises open court cases. Count, sum and last filing date
// all come from the same list so they never disagree.
type Arbitration struct {
	OpenCount  int64
	OpenSum    int64
	LastFiling *time.Time
}

type arbitrationResponse struct {
	TotalCases *int64 `json:"total_cases"`
	Data       []struct {
		Sum              FlexNumber `json:"sum"`
		LastDocumentDate *int64     `json:"last_document_date"`
	} `json:"data"`
}

// OpenArbitration fetches open cases where the company is a party.
func (c *Client) OpenArbitration(ctx context.Context, inn string) (*Arbitration, error) {
	params := url.Values{}
	params.Set("inn", inn)
	params.Set("status", "OPEN")
	params.Set("limit", strconv.Itoa(arbitrationLimit))

	var payload arbitrationResponse
	if err := c.get(ctx, "/arbitration-cases", params, &payload); err != nil {
		return nil, err
	}

	out := &Arbitration{OpenCount: int64(len(payload.Data))}
	var sum float64
	var last int64
	for _, cs := range payload.Data {
		sum += float64(cs.Sum)
		if cs.LastDocumentDate != nil && *cs.LastDocumentDate > last {
			last = *cs.LastDocumentDate
		}
	}
	// total_cases counts beyond the page limit; the sum only covers the page.
	if payload.TotalCases != nil && *payload.TotalCases > out.OpenCount {
		out.OpenCount = *payload.TotalCases
	}
	out.OpenSum = int64(sum)
	if last > 0 {
		t := time.UnixMilli(last).UTC()
		out.LastFiling = &t
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("key", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("datanewton %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusForbidden:
		return ErrTierLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Debug("datanewton request error", "path", path, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("datanewton %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("datanewton %s: decode: %w", path, err)
	}
	return nil
}

func mainOkved(list []Okved) *Okved {
	for i := range list {
		if list[i].Main {
			return &list[i]
		}
	}
	if len(list) > 0 {
		return &list[0]
	}
	return nil
}

func findIndicator(list []indicator, code, name string) *indicator {
	for i := range list {
		if list[i].Code == code {
			return &list[i]
		}
	}
	for i := range list {
		if strings.Contains(strings.ToLower(list[i].Name), name) {
			return &list[i]
		}
	}
	return nil
}

func latestYear[V any](m map[string]V) string {
	best := ""
	for k := range m {
		if _, err := strconv.Atoi(k); err != nil {
			continue
		}
		if k > best {
			best = k
		}
	}
	return best
}

func previousYear(year string) string {
	n, err := strconv.Atoi(year)
	if err != nil {
		return ""
	}
	return strconv.Itoa(n - 1)
}

func thousands(m map[string]FlexNumber, year string) *int64 {
	v, ok := m[year]
	if !ok {
		return nil
	}
	n := int64(float64(v) / 1000)
	return &n
}
