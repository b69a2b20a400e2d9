package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Naiemjoy1/mfs-server/internal/auth"
	"github.com/Naiemjoy1/mfs-server/internal/domain"
	"github.com/Naiemjoy1/mfs-server/internal/models"
	"github.com/Naiemjoy1/mfs-server/internal/service"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.accounts.Register(r.Context(), service.Registration{
		Name:         req.Name,
		PIN:          string(req.PIN),
		Mobile:       req.Mobile,
		Email:        req.Email,
		ProfileImage: req.ProfileImage,
		Role:         domain.Role(req.UserType),
	})
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, models.FromAccount(*a))
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.accounts.Login(r.Context(), req.Email, string(req.PIN))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.LoginResponse{
		Message: "Login successful",
		Token:   sess.Token,
		User:    models.FromAccount(sess.Account),
	})
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.FromAccounts(accounts))
}

func (h *Handler) LookupAccountHandler(w http.ResponseWriter, r *http.Request) {
	a, err := h.accounts.Lookup(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.RoleView{Email: a.Email, UserType: string(a.Role), Status: string(a.Status)})
}

func (h *Handler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())
	var req models.StatusUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.accounts.UpdateStatus(r.Context(), caller, mux.Vars(r)["email"], domain.AccountStatus(req.Status))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
}

func (h *Handler) ChangeRoleHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())
	var req models.RoleUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.accounts.ChangeRole(r.Context(), caller, mux.Vars(r)["id"], domain.Role(req.UserType))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
}

func (h *Handler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())
	if err := h.accounts.Delete(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
}
