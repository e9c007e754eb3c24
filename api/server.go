// Package api provides the HTTP REST API server for marketdash.
//
// It exposes the market-data sections consumed by the dashboard loader,
// the ratio and history series, the economic calendar, news volume,
// premarket briefs, IR meetings, institutional flows, SEC filings, and a
// WebSocket stream of section updates.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/internal/econcal"
	"github.com/wyhuang/marketdash/internal/institutional"
	"github.com/wyhuang/marketdash/internal/ir"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/internal/market"
	"github.com/wyhuang/marketdash/internal/news"
	"github.com/wyhuang/marketdash/internal/sec"
	"github.com/wyhuang/marketdash/internal/strategy"
	"github.com/wyhuang/marketdash/pkg/models"
	"github.com/wyhuang/marketdash/pkg/utils"
)

// Version is stamped at build time via ldflags.
var Version = "dev"

const maxUploadBytes = 4 << 20

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    *config.Config
	log    *logrus.Entry

	markets       *market.Fetcher
	calendar      *econcal.Calendar
	newsVolume    *news.Analyzer
	premarket     *news.Premarket
	irMeetings    *ir.Fetcher
	institutional *institutional.Tracker
	filings       *sec.Client

	wsHub *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config) *Server {
	feeds := news.NewFetcher()
	srv := &Server{
		cfg:           cfg,
		log:           logger.Component("api"),
		markets:       market.NewFetcher(cfg),
		calendar:      econcal.New(cfg.Sources.FREDKey),
		newsVolume:    news.NewAnalyzer(cfg, feeds),
		premarket:     news.NewPremarket(feeds),
		irMeetings:    ir.New(cfg),
		institutional: institutional.New(cfg),
		filings:       sec.NewClient(cfg.Sources.SECUserAgent),
		wsHub:         NewWSHub(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s.log.WithField("addr", addr).Info("API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Fatal("HTTP server error")
		}
	}()

	<-done
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Stage-2 clients wait up to two minutes; the server allows a bit more.
	r.Use(middleware.Timeout(140 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/market-data", s.handleMarketData)
		r.Get("/ratios", s.handleRatios)
		r.Get("/ratios/{id}/history", s.handleRatioHistory)
		r.Get("/stock-history/{symbol}", s.handleStockHistory)
		r.Get("/strategies", s.handleStrategies)
		r.Get("/strategy-recommendation/{symbol}", s.handleStrategyRecommendation)

		r.Get("/economic-calendar", s.handleEconCalendar)
		r.Get("/news-volume", s.handleNewsVolume)
		r.Get("/premarket-data", s.handlePremarket)
		r.Get("/premarket-data/{market}", s.handlePremarketMarket)
		r.Get("/ir-meetings", s.handleIRMeetings)

		r.Get("/institutional-net", s.handleInstitutionalNet)
		r.Get("/institutional-net/dates", s.handleInstitutionalDates)
		r.Post("/institutional-net/upload", s.handleInstitutionalUpload)

		r.Get("/filings/10q/{ticker}", s.handleFilings10Q)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func wantRefresh(r *http.Request) bool {
	v := r.URL.Query().Get("refresh")
	return v == "true" || v == "1"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"version": Version,
			"time_et": utils.FormatDateTime(utils.NowET()),
			"time_tw": utils.FormatDateTime(utils.NowTaipei()),
		},
	})
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	var sections []string
	if raw := r.URL.Query().Get("sections"); raw != "" {
		for _, sec := range strings.Split(raw, ",") {
			if sec = strings.TrimSpace(sec); sec != "" {
				sections = append(sections, sec)
			}
		}
	}

	summary, err := s.markets.GetMarketSummary(r.Context(), sections, wantRefresh(r))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "section_update",
		Data: map[string]interface{}{
			"sections":  sections,
			"timestamp": summary.Timestamp,
		},
	})
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: summary})
}

func (s *Server) handleRatios(w http.ResponseWriter, r *http.Request) {
	summary, err := s.markets.GetRatioSummary(r.Context(), wantRefresh(r))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: summary})
}

func (s *Server) handleRatioHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := s.markets.GetRatioHistory(r.Context(), id, wantRefresh(r))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: history})
}

func (s *Server) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1y"
	}

	history, err := s.markets.GetStockHistory(r.Context(), symbol, period)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: history})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: strategy.All()})
}

func (s *Server) handleStrategyRecommendation(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	quote, err := s.markets.GetQuote(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no market data for %s", symbol))
		return
	}
	timing := strategy.AnalyzeTiming(quote)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: models.StrategyReport{
		MarketData: quote,
		Timing:     timing,
		Strategy:   strategy.Match(quote, timing),
	}})
}

func (s *Server) handleEconCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := s.calendar.GetCalendar(r.Context(), wantRefresh(r))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: cal})
}

func (s *Server) handleNewsVolume(w http.ResponseWriter, r *http.Request) {
	summary, err := s.newsVolume.GetVolumeSummary(r.Context(), wantRefresh(r))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: summary})
}

func (s *Server) handlePremarket(w http.ResponseWriter, r *http.Request) {
	// GetSummary degrades per market, it never fails outright.
	summary := s.premarket.GetSummary(r.Context(), wantRefresh(r))
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: summary})
}

func (s *Server) handlePremarketMarket(w http.ResponseWriter, r *http.Request) {
	brief, err := s.premarket.GetBrief(r.Context(), chi.URLParam(r, "market"), wantRefresh(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: brief})
}

func (s *Server) handleIRMeetings(w http.ResponseWriter, r *http.Request) {
	timeline, err := s.irMeetings.Timeline(wantRefresh(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: timeline})
}

func (s *Server) handleInstitutionalNet(w http.ResponseWriter, r *http.Request) {
	series, err := s.institutional.YearToDate(r.Context(), wantRefresh(r))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: series})
}

func (s *Server) handleInstitutionalDates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]interface{}{
		"dates": s.institutional.UploadedDates(),
	}})
}

func (s *Server) handleInstitutionalUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(content) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}

	date, err := s.institutional.SaveUpload(r.FormValue("date"), header.Filename, content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "institutional_upload",
		Data: map[string]interface{}{"date": date},
	})
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]interface{}{
		"date": date,
	}})
}

func (s *Server) handleFilings10Q(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	limit := 4
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 1 || limit > 40 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 40")
			return
		}
	}

	filings, err := s.filings.Recent10Q(r.Context(), ticker, limit)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]interface{}{
		"ticker":  strings.ToUpper(ticker),
		"filings": filings,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Component("api").WithError(err).Warn("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{Success: false, Error: msg})
}
