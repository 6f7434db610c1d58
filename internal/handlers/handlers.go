// Package handlers exposes the shop as a JSON API over gorilla/mux and
// maps domain errors onto HTTP status codes. Handlers stay thin: they
// parse input, call a service with an explicit user identity, and encode
// the result.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/rolandlluka/simple-ecommerce/internal/cart"
	"github.com/rolandlluka/simple-ecommerce/internal/checkout"
	"github.com/rolandlluka/simple-ecommerce/internal/models"
	"github.com/rolandlluka/simple-ecommerce/internal/store"
)

const (
	productsPerPage = 12
	ordersPerPage   = 10
)

// Authenticator resolves session tokens and handles login/logout. The
// session package provides the production implementation.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, models.User, error)
	Logout(ctx context.Context, token string) error
	UserForToken(ctx context.Context, token string) (models.User, error)
}

type Handler struct {
	store    store.Store
	cart     *cart.Service
	checkout *checkout.Engine
	auth     Authenticator
}

func New(s store.Store, c *cart.Service, e *checkout.Engine, auth Authenticator) *Handler {
	return &Handler{store: s, cart: c, checkout: e, auth: auth}
}

// Router builds the full route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.healthCheck).Methods("GET")
	r.HandleFunc("/login", h.login).Methods("POST")
	r.HandleFunc("/logout", h.requireUser(h.logout)).Methods("POST")

	r.HandleFunc("/products", h.requireUser(h.listProducts)).Methods("GET")
	r.HandleFunc("/products/{id}", h.requireUser(h.getProduct)).Methods("GET")

	r.HandleFunc("/cart", h.requireUser(h.getCart)).Methods("GET")
	r.HandleFunc("/cart", h.requireUser(h.addToCart)).Methods("POST")
	r.HandleFunc("/cart/{id}", h.requireUser(h.updateCartItem)).Methods("PUT")
	r.HandleFunc("/cart/{id}", h.requireUser(h.removeCartItem)).Methods("DELETE")

	r.HandleFunc("/orders", h.requireUser(h.listOrders)).Methods("GET")
	r.HandleFunc("/orders/{id}", h.requireUser(h.getOrder)).Methods("GET")
	r.HandleFunc("/orders", h.requireUser(h.placeOrder)).Methods("POST")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/products", h.requireAdmin(h.adminListProducts)).Methods("GET")
	admin.HandleFunc("/products", h.requireAdmin(h.adminCreateProduct)).Methods("POST")
	admin.HandleFunc("/products/{id}", h.requireAdmin(h.getProduct)).Methods("GET")
	admin.HandleFunc("/products/{id}", h.requireAdmin(h.adminUpdateProduct)).Methods("PUT")
	admin.HandleFunc("/products/{id}", h.requireAdmin(h.adminDeleteProduct)).Methods("DELETE")

	return r
}

type userHandler func(w http.ResponseWriter, r *http.Request, user models.User)

func (h *Handler) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, err := h.auth.UserForToken(r.Context(), token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		next(w, r, user)
	}
}

func (h *Handler) requireAdmin(next userHandler) http.HandlerFunc {
	return h.requireUser(func(w http.ResponseWriter, r *http.Request, user models.User) {
		if !user.IsAdmin {
			writeJSONError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r, user)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request, _ models.User) {
	if err := h.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, _ models.User) {
	page := pageParam(r)
	products, err := h.store.ListProducts(r.Context(), store.ListOptions{
		InStockOnly: true,
		Limit:       productsPerPage,
		Offset:      (page - 1) * productsPerPage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products, "page": page})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request, _ models.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	product, err := h.store.ProductByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, user models.User) {
	view, err := h.cart.ListForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type addToCartRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request, user models.User) {
	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.cart.Add(r.Context(), user.ID, req.ProductID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Product added to cart."})
}

type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request, user models.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.cart.SetQuantity(r.Context(), user.ID, id, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cart updated."})
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request, user models.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.cart.Remove(r.Context(), user.ID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Item removed from cart."})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, user models.User) {
	page := pageParam(r)
	orders, err := h.store.OrdersForUser(r.Context(), user.ID, ordersPerPage, (page-1)*ordersPerPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "page": page})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, user models.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := h.store.OrderByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if order.UserID != user.ID {
		writeJSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	items, err := h.store.OrderItems(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order, "items": items})
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, user models.User) {
	order, err := h.checkout.Checkout(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"order":   order,
		"message": "Order placed successfully!",
	})
}

func (h *Handler) adminListProducts(w http.ResponseWriter, r *http.Request, _ models.User) {
	page := pageParam(r)
	products, err := h.store.ListProducts(r.Context(), store.ListOptions{
		Limit:  productsPerPage,
		Offset: (page - 1) * productsPerPage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products, "page": page})
}

type productRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         string `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
}

func (r productRequest) validate() (decimal.Decimal, error) {
	if r.Name == "" {
		return decimal.Zero, errors.New("name is required")
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return decimal.Zero, errors.New("price must be a decimal number")
	}
	if price.IsNegative() {
		return decimal.Zero, errors.New("price must not be negative")
	}
	if r.StockQuantity < 0 {
		return decimal.Zero, errors.New("stock_quantity must not be negative")
	}
	return price, nil
}

func (h *Handler) adminCreateProduct(w http.ResponseWriter, r *http.Request, _ models.User) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	price, err := req.validate()
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	product := models.Product{
		Name:          req.Name,
		Description:   req.Description,
		Price:         price,
		StockQuantity: req.StockQuantity,
	}
	if err := h.store.CreateProduct(r.Context(), &product); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"product": product,
		"message": "Product created successfully.",
	})
}

func (h *Handler) adminUpdateProduct(w http.ResponseWriter, r *http.Request, _ models.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	price, err := req.validate()
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	product := models.Product{
		ID:            id,
		Name:          req.Name,
		Description:   req.Description,
		Price:         price,
		StockQuantity: req.StockQuantity,
	}
	if err := h.store.UpdateProduct(r.Context(), &product); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product": product,
		"message": "Product updated successfully.",
	})
}

func (h *Handler) adminDeleteProduct(w http.ResponseWriter, r *http.Request, _ models.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.DeleteProduct(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully."})
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, models.ErrNotFound
	}
	return id, nil
}

func pageParam(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && n > 0 {
		return n
	}
	return 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps domain errors to status codes. Anything unrecognized is
// a 500 with a generic body; the detail stays in the log.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrEmptyCart),
		errors.Is(err, models.ErrValidation):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
