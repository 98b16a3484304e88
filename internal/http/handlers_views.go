package httpx

import (
	"net/http"
	"time"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/domain/catalog"
	"github.com/target/storefront-api/internal/service"
)

// ViewHandlers return the view models of the storefront pages. They run behind
// Guard, which has already decided the visitor may see the page.
type ViewHandlers struct{}

type publicView struct {
	View    string             `json:"view"`
	Session domainauth.Session `json:"session"`
}

type dashboardView struct {
	View       string             `json:"view"`
	Session    domainauth.Session `json:"session"`
	Categories []string           `json:"categories"`
	Category   string             `json:"category"`
	Products   []catalog.Item     `json:"products"`
	CartCount  int                `json:"cartCount"`
}

type profileView struct {
	View     string          `json:"view"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	Role     domainauth.Role `json:"role"`
	Joined   string          `json:"joined,omitempty"`
}

type cartView struct {
	View string `json:"view"`
	service.CartSummary
}

type adminView struct {
	View    string             `json:"view"`
	Session domainauth.Session `json:"session"`
}

// Landing handles GET /.
func (h *ViewHandlers) Landing(w http.ResponseWriter, r *http.Request) {
	h.public(w, r, "landing")
}

// Login handles GET /login.
func (h *ViewHandlers) Login(w http.ResponseWriter, r *http.Request) {
	h.public(w, r, "login")
}

// SignUp handles GET /signup.
func (h *ViewHandlers) SignUp(w http.ResponseWriter, r *http.Request) {
	h.public(w, r, "signup")
}

func (h *ViewHandlers) public(w http.ResponseWriter, r *http.Request, view string) {
	snap, _ := SnapshotFromContext(r.Context())
	WriteJSON(w, http.StatusOK, publicView{View: view, Session: snap.Session})
}

// Dashboard handles GET /dashboard?category=<name>.
func (h *ViewHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	snap, _ := SnapshotFromContext(r.Context())
	category := r.URL.Query().Get("category")
	if category == "" {
		category = catalog.Categories[0]
	}
	WriteJSON(w, http.StatusOK, dashboardView{
		View:       "dashboard",
		Session:    snap.Session,
		Categories: catalog.Categories,
		Category:   category,
		Products:   catalog.ByCategory(category),
		CartCount:  v.Cart.CurrentCount(r.Context()),
	})
}

// Profile handles GET /profile. Missing name and role fall back to "User" and "user".
func (h *ViewHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	p, err := v.Reconciler.Profile(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	view := profileView{View: "profile", Email: p.Email, FullName: p.FullName, Role: p.Role}
	if view.FullName == "" {
		view.FullName = "User"
	}
	if !view.Role.Valid() {
		view.Role = domainauth.RoleUser
	}
	if !p.CreatedAt.IsZero() {
		view.Joined = p.CreatedAt.UTC().Format(time.DateOnly)
	}
	WriteJSON(w, http.StatusOK, view)
}

// Cart handles GET /cart.
func (h *ViewHandlers) Cart(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, cartView{View: "cart", CartSummary: v.Cart.Summary(r.Context())})
}

// Admin handles GET /admin.
func (h *ViewHandlers) Admin(w http.ResponseWriter, r *http.Request) {
	snap, _ := SnapshotFromContext(r.Context())
	WriteJSON(w, http.StatusOK, adminView{View: "admin", Session: snap.Session})
}
