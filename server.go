package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/comprobantes-backend/pkg/archive"
	"github.com/denysvitali/comprobantes-backend/pkg/gate"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/portal"
	"github.com/denysvitali/comprobantes-backend/pkg/reference"
)

const (
	dateLayout    = "2006-01-02"
	busyCode      = "SERVER_BUSY"
	maxSearchSize = 200
	maxCompanyIdx = 100
)

// Scraper runs portal pipelines. *portal.Scraper implements it.
type Scraper interface {
	DiscoverCompanies(ctx context.Context, creds models.Credentials) (*models.DiscoveryResult, error)
	FetchInvoices(ctx context.Context, req portal.FetchRequest) (*models.PipelineResult, error)
	Stats() gate.Snapshot
}

// CredentialOpener turns the encrypted envelope sent by clients into
// credentials. *crypt.Crypt implements it.
type CredentialOpener interface {
	Open(envelope string) (models.Credentials, error)
}

type Searcher interface {
	Search(ctx context.Context, term string, companyTaxpayerId string, size int) ([]archive.Hit, error)
}

type RateSource interface {
	Rates(ctx context.Context) (*reference.Table, error)
}

type Server struct {
	e        *gin.Engine
	scraper  Scraper
	creds    CredentialOpener
	searcher Searcher
	jobs     chan<- archive.Job
	rates    RateSource
	now      func() time.Time
}

type Option func(*Server)

// WithArchive enables the search route. Successful fetches are queued on jobs
// when it is not nil.
func WithArchive(searcher Searcher, jobs chan<- archive.Job) Option {
	return func(s *Server) {
		s.searcher = searcher
		s.jobs = jobs
	}
}

func WithRates(rates RateSource) Option {
	return func(s *Server) {
		s.rates = rates
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

var log = logrus.StandardLogger().WithField("package", "backend")

func New(scraper Scraper, creds CredentialOpener, opts ...Option) (*Server, error) {
	if scraper == nil {
		return nil, errors.New("scraper is required")
	}
	if creds == nil {
		return nil, errors.New("credential opener is required")
	}
	s := Server{
		e:       gin.New(),
		scraper: scraper,
		creds:   creds,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.initRoutes()
	return &s, nil
}

func (s *Server) Run(addr string) error {
	return s.e.Run(addr)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	s.e.Use(gin.Logger())
	s.e.Use(gin.Recovery())
	s.e.Use(cors.Default())

	g := s.e.Group("/api/v1")
	g.POST("/companies", s.handleCompanies)
	g.POST("/invoices", s.handleInvoices)
	g.GET("/exchange-rates", s.handleExchangeRates)
	g.GET("/status", s.handleStatus)
	g.POST("/search", s.handleSearch)
}

var badRequest = gin.H{
	"error": "bad request",
}

var internalServerError = gin.H{
	"error": "internal server error",
}

var notFound = gin.H{
	"error": "not found",
}

type CompaniesRequest struct {
	Credentials       string `json:"credentials"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

type InvoicesRequest struct {
	Credentials         string `json:"credentials"`
	CompanyIndex        int    `json:"companyIndex"`
	DateFrom            string `json:"dateFrom"`
	DateTo              string `json:"dateTo"`
	Role                string `json:"role"`
	PointOfSale         string `json:"pointOfSale,omitempty"`
	DocumentType        string `json:"documentType,omitempty"`
	DownloadAttachments bool   `json:"downloadAttachments"`
	VerificationToken   string `json:"verificationToken,omitempty"`
}

type SearchRequest struct {
	SearchTerm        string `json:"searchTerm"`
	CompanyTaxpayerId string `json:"companyTaxpayerId,omitempty"`
	Size              int    `json:"size,omitempty"`
}

func (s *Server) handleCompanies(c *gin.Context) {
	var req CompaniesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	creds, ok := s.openCredentials(c, req.Credentials)
	if !ok {
		return
	}
	logRequest(c, "companies", creds, req.VerificationToken)

	res, err := s.scraper.DiscoverCompanies(detached(c), creds)
	if err != nil {
		s.pipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleInvoices(c *gin.Context) {
	var req InvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	filters, err := s.validateInvoicesRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	creds, ok := s.openCredentials(c, req.Credentials)
	if !ok {
		return
	}
	logRequest(c, "invoices", creds, req.VerificationToken)

	res, err := s.scraper.FetchInvoices(detached(c), portal.FetchRequest{
		Credentials:         creds,
		CompanyIndex:        req.CompanyIndex,
		Filters:             filters,
		DownloadAttachments: req.DownloadAttachments,
	})
	if err != nil {
		s.pipelineError(c, err)
		return
	}
	if res.Success && res.Company != nil && len(res.Invoices) > 0 {
		s.enqueueArchive(archive.Job{Company: *res.Company, Invoices: res.Invoices})
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) validateInvoicesRequest(req InvoicesRequest) (models.QueryFilters, error) {
	var filters models.QueryFilters
	from, err := time.Parse(dateLayout, req.DateFrom)
	if err != nil {
		return filters, errors.New("dateFrom must be formatted as YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, req.DateTo)
	if err != nil {
		return filters, errors.New("dateTo must be formatted as YYYY-MM-DD")
	}
	if to.Before(from) {
		return filters, errors.New("dateFrom must not be after dateTo")
	}
	if to.After(from.AddDate(1, 0, 0)) {
		return filters, errors.New("the date range must not exceed one year")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return filters, fmt.Errorf("role must be %q or %q", models.RoleIssued, models.RoleReceived)
	}
	if req.CompanyIndex < 0 || req.CompanyIndex > maxCompanyIdx {
		return filters, fmt.Errorf("invalid companyIndex %d", req.CompanyIndex)
	}
	return models.QueryFilters{
		DateFrom:     from,
		DateTo:       to,
		Role:         role,
		PointOfSale:  req.PointOfSale,
		DocumentType: req.DocumentType,
	}, nil
}

func (s *Server) openCredentials(c *gin.Context, envelope string) (models.Credentials, bool) {
	creds, err := s.creds.Open(envelope)
	if err != nil {
		log.Debugf("rejected credentials envelope: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credentials"})
		return creds, false
	}
	return creds, true
}

// pipelineError answers for errors that are not portal failures. Portal
// failures are part of the result and never reach this point.
func (s *Server) pipelineError(c *gin.Context, err error) {
	var busy *gate.BusyError
	if errors.As(err, &busy) {
		log.Warnf("rejecting request: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success":   false,
			"error":     "The server is busy with other requests. Retry shortly.",
			"errorCode": busyCode,
			"waiting":   busy.Waiting,
		})
		return
	}
	log.Errorf("pipeline failed: %v", err)
	c.JSON(http.StatusInternalServerError, internalServerError)
}

func (s *Server) enqueueArchive(job archive.Job) {
	if s.jobs == nil {
		return
	}
	select {
	case s.jobs <- job:
	default:
		log.Warnf("archive queue is full, dropping %d invoices", len(job.Invoices))
	}
}

func (s *Server) handleExchangeRates(c *gin.Context) {
	if s.rates == nil {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	table, err := s.rates.Rates(c.Request.Context())
	if err != nil {
		log.Errorf("unable to fetch exchange rates: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to fetch exchange rates"})
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gate":    s.scraper.Stats(),
		"archive": s.searcher != nil,
		"time":    s.now().UTC(),
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.searcher == nil {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SearchTerm == "" {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	size := req.Size
	if size > maxSearchSize {
		size = maxSearchSize
	}

	hits, err := s.searcher.Search(c.Request.Context(), req.SearchTerm, req.CompanyTaxpayerId, size)
	if err != nil {
		log.Errorf("unable to perform search: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits, "total": len(hits)})
}

// detached keeps a run going when the client disconnects. Runs are bounded by
// the scraper's own timeout.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func logRequest(c *gin.Context, kind string, creds models.Credentials, verificationToken string) {
	log.WithFields(logrus.Fields{
		"kind":         kind,
		"taxpayer":     models.MaskTaxpayerId(creds.TaxpayerId),
		"verification": verificationToken != "",
		"client":       c.ClientIP(),
	}).Info("starting pipeline run")
}
