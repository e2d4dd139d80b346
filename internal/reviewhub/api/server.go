// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api implements the public-facing HTTP server. It translates
// requests into calls on the cache, seckill, feed and like components and
// maps their error taxonomy onto HTTP status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"reviewhub/internal/reviewhub/cache"
	"reviewhub/internal/reviewhub/feed"
	"reviewhub/internal/reviewhub/idgen"
	"reviewhub/internal/reviewhub/keys"
	"reviewhub/internal/reviewhub/like"
	"reviewhub/internal/reviewhub/seckill"
	"reviewhub/internal/reviewhub/store"
)

// Server handles the HTTP requests for the review service.
type Server struct {
	cache    *cache.Client
	backing  store.Store
	deals    *seckill.Coordinator
	timeline *feed.Timeline
	likes    *like.Registry
	ids      *idgen.Generator

	now func() time.Time
}

// NewServer creates a new API server over fully constructed components.
func NewServer(c *cache.Client, backing store.Store, deals *seckill.Coordinator,
	timeline *feed.Timeline, likes *like.Registry, ids *idgen.Generator) *Server {
	return &Server{
		cache:    c,
		backing:  backing,
		deals:    deals,
		timeline: timeline,
		likes:    likes,
		ids:      ids,
		now:      time.Now,
	}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /shops/{id}", s.handleGetShop)
	mux.HandleFunc("PUT /shops/{id}", s.handleUpdateShop)
	mux.HandleFunc("POST /vouchers/{id}/orders", s.handlePurchase)
	mux.HandleFunc("POST /blogs", s.handlePublishBlog)
	mux.HandleFunc("POST /blogs/{id}/like", s.handleToggleLike)
	mux.HandleFunc("GET /blogs/{id}/likes", s.handleTopLikers)
	mux.HandleFunc("GET /feed", s.handlePullFeed)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID parses the {id} path segment. A zero return means the response has
// already been written.
func pathID(w http.ResponseWriter, r *http.Request) int64 {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0
	}
	return id
}

// userParam parses the user query parameter. Authentication is out of scope;
// callers identify themselves explicitly.
func userParam(w http.ResponseWriter, r *http.Request) int64 {
	id, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "user is required")
		return 0
	}
	return id
}

// handleGetShop serves a shop through the mutex-protected cache, so a cold or
// invalidated key triggers exactly one backing load under concurrency.
func (s *Server) handleGetShop(w http.ResponseWriter, r *http.Request) {
	id := pathID(w, r)
	if id == 0 {
		return
	}
	shop, found, err := cache.WithMutex(r.Context(), s.cache,
		keys.Cache("shop", id), keys.Lock("shop", id),
		func(ctx context.Context) (store.Shop, bool, error) {
			return s.backing.GetShop(ctx, id)
		})
	if err != nil {
		if errors.Is(err, cache.ErrContention) {
			writeError(w, http.StatusServiceUnavailable, "shop is being rebuilt, retry")
			return
		}
		writeError(w, http.StatusInternalServerError, "load shop")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "shop not found")
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

// handleUpdateShop writes the database first and invalidates the cache entry
// second. Readers between the two steps may see the old value, never a
// permanently stale one.
func (s *Server) handleUpdateShop(w http.ResponseWriter, r *http.Request) {
	id := pathID(w, r)
	if id == 0 {
		return
	}
	var shop store.Shop
	if err := json.NewDecoder(r.Body).Decode(&shop); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	shop.ID = id
	if err := s.backing.UpdateShop(r.Context(), shop); err != nil {
		writeError(w, http.StatusNotFound, "shop not found")
		return
	}
	if err := s.cache.Invalidate(r.Context(), keys.Cache("shop", id)); err != nil {
		writeError(w, http.StatusInternalServerError, "invalidate cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	voucherID := pathID(w, r)
	if voucherID == 0 {
		return
	}
	userID := userParam(w, r)
	if userID == 0 {
		return
	}
	orderID, err := s.deals.Purchase(r.Context(), voucherID, userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]int64{"order_id": orderID})
	case errors.Is(err, seckill.ErrVoucherNotFound):
		writeError(w, http.StatusNotFound, "voucher not found")
	case errors.Is(err, seckill.ErrNotStarted), errors.Is(err, seckill.ErrEnded):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, seckill.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "sold out")
	case errors.Is(err, seckill.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, "already ordered")
	default:
		writeError(w, http.StatusInternalServerError, "purchase failed")
	}
}

type publishRequest struct {
	UserID  int64  `json:"user_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// handlePublishBlog stores the post and fans it out to the author's current
// followers in one request.
func (s *Server) handlePublishBlog(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := s.ids.Next(r.Context(), "blog")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "allocate id")
		return
	}
	now := s.now()
	blog := store.Blog{
		ID:        id,
		UserID:    req.UserID,
		Title:     req.Title,
		Content:   req.Content,
		CreatedAt: now,
	}
	if err := s.backing.CreateBlog(r.Context(), blog); err != nil {
		writeError(w, http.StatusInternalServerError, "store blog")
		return
	}
	if err := s.timeline.Publish(r.Context(), req.UserID, id, now); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("fan out: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"blog_id": id})
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	blogID := pathID(w, r)
	if blogID == 0 {
		return
	}
	userID := userParam(w, r)
	if userID == 0 {
		return
	}
	liked, err := s.likes.Toggle(r.Context(), blogID, userID)
	if err != nil {
		if errors.Is(err, like.ErrPostNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "toggle like")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

func (s *Server) handleTopLikers(w http.ResponseWriter, r *http.Request) {
	blogID := pathID(w, r)
	if blogID == 0 {
		return
	}
	k := int64(5)
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		k = n
	}
	users, err := s.likes.TopLikers(r.Context(), blogID, k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list likers")
		return
	}
	if users == nil {
		users = []store.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// handlePullFeed reads one inbox page. max and offset echo the cursor of the
// previous response; omitting max starts from now.
func (s *Server) handlePullFeed(w http.ResponseWriter, r *http.Request) {
	userID := userParam(w, r)
	if userID == 0 {
		return
	}
	q := r.URL.Query()
	max := s.now().UnixMilli()
	if raw := q.Get("max"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid max")
			return
		}
		max = n
	}
	var offset int64
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}
	page, err := s.timeline.Pull(r.Context(), userID, max, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read feed")
		return
	}
	if page.PostIDs == nil {
		page.PostIDs = []int64{}
	}
	writeJSON(w, http.StatusOK, page)
}

// ListenAndServe starts the HTTP server on the specified address.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Printf("reviewhub API server listening on %s\n", addr)
	return httpServer.ListenAndServe()
}
