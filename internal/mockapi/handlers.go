package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/creatorlink/internal/identity"
	"github.com/tjfontaine/creatorlink/internal/platform"
)

const maxRequestBytes = 1 << 20

type envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Success bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data, Message: "ok", Status: status, Success: true})
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": "Validation failed",
		"errors": fields,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request, err error, what string) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	AddError(r.Context(), err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        *User  `json:"user"`
}

func (s *Server) respondToken(w http.ResponseWriter, r *http.Request, status int, u *User) {
	token, err := s.Issuer.Issue(u)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	writeJSON(w, status, tokenResponse{AccessToken: token, TokenType: "bearer", User: u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds identity.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	u, err := s.Store.Authenticate(creds.Email, creds.Password)
	if err != nil {
		AddLogField(r.Context(), "email", creds.Email)
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	s.respondToken(w, r, http.StatusOK, u)
}

func (s *Server) handleRegisterBrand(w http.ResponseWriter, r *http.Request) {
	var reg identity.BrandRegistration
	if !decodeBody(w, r, &reg) {
		return
	}
	if fields := reg.Validate(); fields != nil {
		writeValidation(w, fields)
		return
	}
	s.register(w, r, User{
		Email:       reg.Email,
		FullName:    reg.FullName,
		Username:    reg.Username,
		CompanyName: reg.CompanyName,
		Kind:        identity.KindBrand,
	}, reg.Password)
}

func (s *Server) handleRegisterCreator(w http.ResponseWriter, r *http.Request) {
	var reg identity.CreatorRegistration
	if !decodeBody(w, r, &reg) {
		return
	}
	if fields := reg.Validate(); fields != nil {
		writeValidation(w, fields)
		return
	}
	s.register(w, r, User{
		Email:    reg.Email,
		FullName: reg.FullName,
		Username: reg.Username,
		Kind:     identity.KindCreator,
	}, reg.Password)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, u User, password string) {
	created, err := s.Store.AddUser(u, password)
	if errors.Is(err, ErrEmailTaken) {
		writeValidation(w, map[string][]string{"email": {"Email already registered"}})
		return
	}
	if err != nil {
		s.notFound(w, r, err, "user")
		return
	}
	AddLogField(r.Context(), "user_id", created.ID)
	s.respondToken(w, r, http.StatusCreated, created)
}

func owner(r *http.Request) string {
	if c := GetClaims(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}

func pathID(r *http.Request, name string) platform.ID {
	return platform.ID(chi.URLParam(r, name))
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.Store.Campaigns(owner(r)))
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.Campaign(owner(r), pathID(r, "id"))
	if err != nil {
		s.notFound(w, r, err, "Campaign")
		return
	}
	writeData(w, http.StatusOK, c)
}

func validateCampaign(in platform.CampaignInput) map[string][]string {
	fields := map[string][]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = append(fields["title"], "Title is required")
	}
	if in.Budget < 0 {
		fields["budget"] = append(fields["budget"], "Budget cannot be negative")
	}
	if in.StartDate != "" && in.EndDate != "" && in.EndDate < in.StartDate {
		fields["end_date"] = append(fields["end_date"], "End date must be after start date")
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in platform.CampaignInput
	if !decodeBody(w, r, &in) {
		return
	}
	if fields := validateCampaign(in); fields != nil {
		writeValidation(w, fields)
		return
	}
	var brand string
	if c := GetClaims(r.Context()); c != nil {
		brand = c.Name
	}
	c := s.Store.CreateCampaign(owner(r), brand, in)
	AddLogField(r.Context(), "campaign_id", c.ID.String())
	writeData(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var in platform.CampaignInput
	if !decodeBody(w, r, &in) {
		return
	}
	if fields := validateCampaign(in); fields != nil {
		writeValidation(w, fields)
		return
	}
	c, err := s.Store.UpdateCampaign(owner(r), pathID(r, "id"), in)
	if err != nil {
		s.notFound(w, r, err, "Campaign")
		return
	}
	writeData(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteCampaign(owner(r), pathID(r, "id")); err != nil {
		s.notFound(w, r, err, "Campaign")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status platform.CampaignStatus `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !body.Status.Valid() {
		writeValidation(w, map[string][]string{"status": {"Unknown campaign status"}})
		return
	}
	c, err := s.Store.SetStatus(owner(r), pathID(r, "id"), body.Status)
	if err != nil {
		s.notFound(w, r, err, "Campaign")
		return
	}
	writeData(w, http.StatusOK, c)
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.Store.Roster(owner(r), pathID(r, "id"))
	if err != nil {
		s.notFound(w, r, err, "Campaign")
		return
	}
	writeData(w, http.StatusOK, roster)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CreatorIDs []platform.ID `json:"creator_ids"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.CreatorIDs) == 0 {
		writeValidation(w, map[string][]string{"creator_ids": {"Select at least one creator"}})
		return
	}
	roster, err := s.Store.Invite(owner(r), pathID(r, "id"), body.CreatorIDs)
	if err != nil {
		s.notFound(w, r, err, "Campaign or creator")
		return
	}
	writeData(w, http.StatusOK, roster)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Store.Chat(owner(r), pathID(r, "id"), pathID(r, "creatorID"))
	if err != nil {
		s.notFound(w, r, err, "Conversation")
		return
	}
	writeData(w, http.StatusOK, msgs)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	intParam := func(name string) int64 {
		n, _ := strconv.ParseInt(q.Get(name), 10, 64)
		return n
	}
	creators, scores := s.Store.Search(SearchQuery{
		Text:         q.Get("query"),
		Category:     q.Get("category"),
		Location:     q.Get("location"),
		MinFollowers: intParam("min_followers"),
		MaxFollowers: intParam("max_followers"),
		Limit:        int(intParam("limit")),
	})
	writeData(w, http.StatusOK, map[string]any{
		"creators":          creators,
		"similarity_scores": scores,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.Store.Dashboard(owner(r)))
}

func (s *Server) handleCampaignAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.Store.CampaignAnalytics(owner(r), pathID(r, "id"))
	if err != nil {
		s.notFound(w, r, err, "Campaign")
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *Server) handleInfluencerAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.Store.InfluencerAnalytics(pathID(r, "id"))
	if err != nil {
		s.notFound(w, r, err, "Creator")
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Amount <= 0 {
		writeValidation(w, map[string][]string{"amount": {"Amount must be positive"}})
		return
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	AddLogField(r.Context(), "payment_intent", "pi_"+id)
	writeJSON(w, http.StatusOK, platform.PaymentIntent{
		ClientSecret: "pi_" + id + "_secret_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16],
	})
}
