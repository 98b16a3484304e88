package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/domain/cart"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/observability/metrics"
	"github.com/target/storefront-api/internal/ports"
)

// ReconcilerDeps are the collaborators every SessionReconciler needs.
type ReconcilerDeps struct {
	Identity ports.IdentityClient
	Profiles ports.ProfileStore
	Cache    ports.LocalCache
}

// ReconcilerConfig carries the optional behaviour knobs.
type ReconcilerConfig struct {
	CartPolicy cart.LogoutPolicy
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// SessionReconcilerOptions groups dependencies for SessionReconciler.
type SessionReconcilerOptions struct {
	Deps   ReconcilerDeps
	Cart   *CartStore // Optional: cleared on logout under ClearOnLogout
	Config ReconcilerConfig
}

// SessionReconciler keeps one visitor's session in agreement with the identity
// provider. The cached "auth" record only seeds a placeholder while the first
// resolution is pending; every provider answer overrides it.
//
// Each reconciliation attempt, login and logout takes a new generation under mu.
// A profile fetch applies its result only if its generation is still current, so
// the last writer always wins and a fetch that completes after a session ended
// is dropped.
type SessionReconciler struct {
	identity ports.IdentityClient
	profiles ports.ProfileStore
	records  *AuthRecordRepo
	cart     *CartStore
	policy   cart.LogoutPolicy
	forms    *FormValidator
	logger   *slog.Logger
	metrics  *metrics.Recorder

	mu          sync.Mutex
	gen         uint64
	snap        domainauth.Snapshot
	placeholder *domainauth.CachedSessionRecord
	resolved    chan struct{}
	started     bool
	closed      bool
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewSessionReconciler constructs a reconciler in the Pending state.
func NewSessionReconciler(opts SessionReconcilerOptions) *SessionReconciler {
	if opts.Deps.Identity == nil {
		panic("IdentityClient is required")
	}
	if opts.Deps.Profiles == nil {
		panic("ProfileStore is required")
	}
	if opts.Deps.Cache == nil {
		panic("LocalCache is required")
	}
	policy := opts.Config.CartPolicy
	if policy == "" {
		policy = cart.RetainOnLogout
	}
	logger := orDiscard(opts.Config.Logger).With("component", "session_reconciler")
	return &SessionReconciler{
		identity: opts.Deps.Identity,
		profiles: opts.Deps.Profiles,
		records:  NewAuthRecordRepo(opts.Deps.Cache, logger),
		cart:     opts.Cart,
		policy:   policy,
		forms:    defaultForms,
		logger:   logger,
		metrics:  opts.Config.Metrics,
		snap:     domainauth.PendingSnapshot(),
		resolved: make(chan struct{}),
	}
}

// Start loads the cached placeholder, subscribes to provider session changes and
// resolves the initial session in the background. The reconciler outlives ctx's
// cancellation; call Close to stop it.
func (r *SessionReconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.mu.Unlock()

	if rec, ok := r.records.Load(runCtx); ok && rec.Session().Authenticated {
		r.mu.Lock()
		if r.snap.State == domainauth.StatePending {
			r.placeholder = &rec
		}
		r.mu.Unlock()
	}

	unsubscribe := r.identity.OnSessionChange(func(ev domainauth.ProviderEvent) {
		r.OnProviderSessionChanged(runCtx, ev)
	})
	r.mu.Lock()
	if r.closed {
		// Close ran while we were subscribing.
		r.mu.Unlock()
		unsubscribe()
		return
	}
	r.unsubscribe = unsubscribe
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.ResolveInitialSession(runCtx)
	}()
}

// Close unsubscribes from the provider and waits for background work. Safe to call more than once.
func (r *SessionReconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel, unsubscribe := r.cancel, r.unsubscribe
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	r.wg.Wait()
}

// Snapshot returns a consistent read of the state and session.
func (r *SessionReconciler) Snapshot() domainauth.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Placeholder returns the cached record while the reconciler is still Pending.
// It is display-only and never used for authorization.
func (r *SessionReconciler) Placeholder() (domainauth.CachedSessionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.State != domainauth.StatePending || r.placeholder == nil {
		return domainauth.CachedSessionRecord{}, false
	}
	return *r.placeholder, true
}

// Resolved is closed once the reconciler leaves Pending.
func (r *SessionReconciler) Resolved() <-chan struct{} { return r.resolved }

// AwaitResolved blocks until the reconciler leaves Pending or ctx is done.
func (r *SessionReconciler) AwaitResolved(ctx context.Context) (domainauth.Snapshot, error) {
	select {
	case <-r.resolved:
		return r.Snapshot(), nil
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

// ResolveInitialSession asks the provider for the current session and, when one
// exists, loads the profile. Any failure resolves to Unauthenticated; the
// reconciler never stays Pending after this returns.
func (r *SessionReconciler) ResolveInitialSession(ctx context.Context) domainauth.Snapshot {
	gen := r.begin()
	start := time.Now()

	ident, err := r.identity.CurrentSession(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "identity provider session lookup failed", "error", err)
		r.settle(ctx, gen, domainauth.Anonymous(), metrics.SourceInitial, start, apperrors.Remote(err, "session lookup failed"))
		return r.Snapshot()
	}
	if ident == nil {
		r.settle(ctx, gen, domainauth.Anonymous(), metrics.SourceInitial, start, nil)
		return r.Snapshot()
	}

	sess, err := r.authoritative(ctx, *ident)
	if err != nil {
		r.logger.WarnContext(ctx, "profile resolution failed", "user_id", ident.UserID, "error", err)
		r.settle(ctx, gen, domainauth.Anonymous(), metrics.SourceInitial, start, err)
		return r.Snapshot()
	}
	r.settle(ctx, gen, sess, metrics.SourceInitial, start, nil)
	return r.Snapshot()
}

// OnProviderSessionChanged handles a provider session transition. SessionActive
// re-fetches the profile and applies it if no newer attempt started meanwhile;
// SessionEnded resets the session and erases the cached record immediately.
func (r *SessionReconciler) OnProviderSessionChanged(ctx context.Context, ev domainauth.ProviderEvent) {
	start := time.Now()
	switch ev.Kind {
	case domainauth.EventSessionEnded:
		r.reset(ctx)
		r.observe(metrics.SourceProvider, metrics.ResultUnauthenticated, start, nil)
	case domainauth.EventSessionActive:
		gen := r.begin()
		sess, err := r.authoritative(ctx, ev.Identity)
		if err != nil {
			r.logger.WarnContext(ctx, "profile refresh failed", "user_id", ev.Identity.UserID, "error", err)
			r.failActive(ctx, gen, start, err)
			return
		}
		r.settle(ctx, gen, sess, metrics.SourceProvider, start, nil)
	default:
		r.logger.DebugContext(ctx, "ignoring provider event", "kind", ev.Kind)
	}
}

// Login signs in with the provider and applies an optimistic session built from
// the returned identity, then runs the authoritative profile pass before
// returning. On failure the state is left unchanged.
func (r *SessionReconciler) Login(ctx context.Context, creds domainauth.Credentials) (domainauth.Session, error) {
	start := time.Now()
	if err := r.forms.ValidateLogin(LoginForm{Email: creds.Email, Password: creds.Password}); err != nil {
		return domainauth.Session{}, err
	}
	creds.Email = trimmed(creds.Email)

	ident, err := r.identity.SignIn(ctx, creds)
	if err != nil {
		err = mapSignInError(err)
		r.observe(metrics.SourceLogin, metrics.ResultError, start, err)
		return domainauth.Session{}, err
	}
	return r.establish(ctx, ident, ident.RoleHint, metrics.SourceLogin, start), nil
}

// SignUp validates the form, registers with the provider, creates the profile
// record and signs the visitor in. A failed profile insert is logged and does
// not fail the sign-up; the identity already exists.
func (r *SessionReconciler) SignUp(ctx context.Context, in domainauth.SignUpInput) (domainauth.Session, error) {
	start := time.Now()
	form := signUpFormOf(in)
	if err := r.forms.check(form, signUpRules); err != nil {
		return domainauth.Session{}, err
	}
	in = form.Input()

	ident, err := r.identity.SignUp(ctx, in)
	if err != nil {
		err = mapSignUpError(err)
		r.observe(metrics.SourceSignUp, metrics.ResultError, start, err)
		return domainauth.Session{}, err
	}

	profile := domainauth.Profile{
		ID:       ident.UserID,
		Email:    firstNonBlank(ident.Email, in.Email),
		FullName: in.FullName(),
		Role:     domainauth.RoleUser,
	}
	if err := r.profiles.CreateProfile(ctx, profile); err != nil && !apperrors.IsConflict(err) {
		r.logger.WarnContext(ctx, "profile creation failed after sign-up",
			"user_id", ident.UserID, "error", apperrors.Partial(err, "create profile"))
	}
	return r.establish(ctx, ident, domainauth.RoleUser, metrics.SourceSignUp, start), nil
}

// Logout signs out with the provider and then resets the local session
// regardless of the outcome. A provider failure is returned as a partial error.
func (r *SessionReconciler) Logout(ctx context.Context) error {
	start := time.Now()
	signOutErr := r.identity.SignOut(ctx)
	r.reset(ctx)

	if r.policy == cart.ClearOnLogout && r.cart != nil {
		if err := r.cart.Clear(ctx); err != nil {
			r.logger.WarnContext(ctx, "clearing cart on logout failed", "error", err)
		}
	}

	if signOutErr != nil {
		err := apperrors.Partial(signOutErr, "provider sign-out failed")
		r.logger.WarnContext(ctx, "provider sign-out failed; local session reset", "error", signOutErr)
		r.observe(metrics.SourceLogout, metrics.ResultUnauthenticated, start, err)
		return err
	}
	r.observe(metrics.SourceLogout, metrics.ResultUnauthenticated, start, nil)
	return nil
}

// Profile returns the profile record of the authenticated visitor.
func (r *SessionReconciler) Profile(ctx context.Context) (domainauth.Profile, error) {
	snap := r.Snapshot()
	if snap.State != domainauth.StateAuthenticated {
		return domainauth.Profile{}, apperrors.Unauthorized("not signed in")
	}
	p, err := r.profiles.GetProfile(ctx, snap.Session.UserID)
	if err != nil {
		if apperrors.GetCode(err) != "" {
			return domainauth.Profile{}, err
		}
		return domainauth.Profile{}, apperrors.Remote(err, "profile fetch failed")
	}
	return p, nil
}

// establish applies the optimistic session for a fresh sign-in and then the
// authoritative one. It returns the authoritative session, or the optimistic one
// when the profile pass failed.
func (r *SessionReconciler) establish(
	ctx context.Context,
	ident domainauth.Identity,
	role domainauth.Role,
	source string,
	start time.Time,
) domainauth.Session {
	optimistic := domainauth.NewSession(ident.UserID, ident.Email, role)

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.applyLocked(ctx, optimistic)
	r.mu.Unlock()

	sess, err := r.authoritative(ctx, ident)
	if err != nil {
		r.logger.WarnContext(ctx, "profile pass after sign-in failed; keeping provider role",
			"user_id", ident.UserID, "error", err)
		r.observe(source, metrics.ResultAuthenticated, start, err)
		return optimistic
	}
	r.settle(ctx, gen, sess, source, start, nil)
	// The caller gets what its own sign-in produced even if a provider event
	// overtook it; the shared state converges on the following SessionActive.
	return sess
}

// authoritative builds the session from the profile store. A missing profile is
// provisioned with the provider's role hint so identities created outside the
// storefront can still sign in.
func (r *SessionReconciler) authoritative(ctx context.Context, ident domainauth.Identity) (domainauth.Session, error) {
	if ident.UserID == "" {
		return domainauth.Session{}, apperrors.Remote(errors.New("identity without user id"), "profile fetch failed")
	}

	p, err := r.profiles.GetProfile(ctx, ident.UserID)
	switch {
	case err == nil:
		return domainauth.NewSession(ident.UserID, firstNonBlank(p.Email, ident.Email), p.Role), nil
	case apperrors.IsNotFound(err):
		role := ident.RoleHint
		if !role.Valid() {
			role = domainauth.RoleUser
		}
		created := domainauth.Profile{ID: ident.UserID, Email: ident.Email, FullName: ident.FullName, Role: role}
		if cerr := r.profiles.CreateProfile(ctx, created); cerr != nil && !apperrors.IsConflict(cerr) {
			return domainauth.Session{}, apperrors.Remote(cerr, "provision profile failed")
		}
		r.logger.InfoContext(ctx, "provisioned missing profile", "user_id", ident.UserID, "role", role)
		return domainauth.NewSession(ident.UserID, ident.Email, role), nil
	default:
		return domainauth.Session{}, apperrors.Remote(err, "profile fetch failed")
	}
}

// begin starts a new reconciliation attempt.
func (r *SessionReconciler) begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	return r.gen
}

// settle applies sess if gen is still current and records the outcome.
func (r *SessionReconciler) settle(
	ctx context.Context,
	gen uint64,
	sess domainauth.Session,
	source string,
	start time.Time,
	cause error,
) {
	r.mu.Lock()
	current := gen == r.gen
	if current {
		r.applyLocked(ctx, sess)
	}
	r.mu.Unlock()

	switch {
	case !current:
		r.logger.DebugContext(ctx, "discarding stale session result", "source", source, "generation", gen)
		r.observe(source, metrics.ResultStale, start, nil)
	case cause != nil:
		r.observe(source, metrics.ResultError, start, cause)
	case sess.Authenticated:
		r.observe(source, metrics.ResultAuthenticated, start, nil)
	default:
		r.observe(source, metrics.ResultUnauthenticated, start, nil)
	}
}

// failActive handles a failed SessionActive refresh: the prior state is kept
// unless the reconciler is still Pending, which resolves to Unauthenticated.
func (r *SessionReconciler) failActive(ctx context.Context, gen uint64, start time.Time, cause error) {
	r.mu.Lock()
	current := gen == r.gen
	if current && r.snap.State == domainauth.StatePending {
		r.applyLocked(ctx, domainauth.Anonymous())
	}
	r.mu.Unlock()

	if !current {
		r.observe(metrics.SourceProvider, metrics.ResultStale, start, nil)
		return
	}
	r.observe(metrics.SourceProvider, metrics.ResultError, start, cause)
}

// reset ends the session under a new generation.
func (r *SessionReconciler) reset(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.applyLocked(ctx, domainauth.Anonymous())
}

// applyLocked installs sess and mirrors it into the cache. Callers hold mu.
func (r *SessionReconciler) applyLocked(ctx context.Context, sess domainauth.Session) {
	r.snap = domainauth.SnapshotOf(sess)
	r.placeholder = nil
	r.markResolvedLocked()

	var err error
	if sess.Authenticated {
		err = r.records.Save(ctx, sess)
	} else {
		err = r.records.Clear(ctx)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "persisting session record failed", "error", err)
	}
}

func (r *SessionReconciler) markResolvedLocked() {
	select {
	case <-r.resolved:
	default:
		close(r.resolved)
	}
}

func (r *SessionReconciler) observe(source, result string, start time.Time, err error) {
	r.metrics.ObserveReconcile(metrics.ReconcileMetric{
		Source:   source,
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
}

func mapSignInError(err error) error {
	switch {
	case errors.Is(err, ports.ErrInvalidCredentials):
		return apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "Invalid email or password")
	case apperrors.GetCode(err) != "":
		return err
	default:
		return apperrors.Remote(err, "sign in failed")
	}
}

func mapSignUpError(err error) error {
	switch {
	case errors.Is(err, ports.ErrSignUpUnsupported):
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "Sign up is not available")
	case errors.Is(err, ports.ErrAccountExists):
		return apperrors.Wrap(err, apperrors.ErrCodeConflict, "An account with this email already exists")
	case apperrors.GetCode(err) != "":
		return err
	default:
		return apperrors.Remote(err, "sign up failed")
	}
}
