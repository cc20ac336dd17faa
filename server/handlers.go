package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	auth "github.com/zkjwt/go-zkjwt-auth"
	"github.com/zkjwt/go-zkjwt-auth/internal/field"
	"github.com/zkjwt/go-zkjwt-auth/pubsignals"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

var (
	errUnknownSender = errors.New("sender is not a registered member")
	errSenderExpired = errors.New("sender key has expired")
	errWrongGroup    = errors.New("sender is not a member of the group")
)

type proofRequest struct {
	// Proof is 0x-prefixed hex.
	Proof string `json:"proof"`
	// PublicInputs are decimal or 0x hex words.
	PublicInputs []string       `json:"public_inputs"`
	Claimed      *claimedValues `json:"claimed,omitempty"`
}

type claimedValues struct {
	Modulus         string    `json:"modulus"`
	Domain          string    `json:"domain"`
	EphemeralPubkey string    `json:"ephemeral_pubkey"`
	Expiry          time.Time `json:"expiry"`
}

type addMemberRequest struct {
	proofRequest
	Provider  types.Provider    `json:"provider"`
	ProofArgs map[string]string `json:"proof_args,omitempty"`
}

type verifyResponse struct {
	State          string                    `json:"state"`
	Verified       bool                      `json:"verified"`
	Fingerprint    string                    `json:"fingerprint,omitempty"`
	Record         *types.VerificationRecord `json:"record,omitempty"`
	Error          string                    `json:"error,omitempty"`
	RecordingError string                    `json:"recording_error,omitempty"`
}

type likesRequest struct {
	Increase bool `json:"increase"`
}

type likesResponse struct {
	ID    uint32 `json:"id"`
	Likes uint32 `json:"likes"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body proofRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := body.verifyRequest(s.srsPath)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.verifier.Verify(r.Context(), req)
	if res == nil {
		s.respondError(w, r, err)
		return
	}
	if err != nil {
		s.respondJSON(w, statusOf(err), newVerifyResponse(res))
		return
	}
	s.respondJSON(w, http.StatusOK, newVerifyResponse(res))
}

// handleAddMember verifies the membership proof and registers its
// ephemeral key under the proven domain.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var body addMemberRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := body.verifyRequest(s.srsPath)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	values, err := pubsignals.Decode(req.PublicInputs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !values.Expiry.After(s.now()) {
		s.respondError(w, r, types.NewError(types.KindInput, "register member", errSenderExpired))
		return
	}

	provider := body.Provider
	if provider == "" {
		provider = types.ProviderGoogle
	}
	req.Member = &types.Member{
		PubKey:       values.EphemeralPubkey.String(),
		PubKeyExpiry: values.Expiry.UTC().Format(time.RFC3339),
		Provider:     provider,
		Proof:        req.Proof,
		ProofArgs:    body.ProofArgs,
		GroupID:      values.Domain,
	}

	res, err := s.verifier.Verify(r.Context(), req)
	switch {
	case res == nil:
		s.respondError(w, r, err)
	case err != nil:
		s.respondJSON(w, statusOf(err), newVerifyResponse(res))
	case res.RecordingErr != nil:
		s.respondJSON(w, http.StatusServiceUnavailable, newVerifyResponse(res))
	default:
		s.respondJSON(w, http.StatusCreated, req.Member)
	}
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	pubkey, err := normalizeKey(chi.URLParam(r, "pubkey"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	m, err := s.store.GetMember(r.Context(), pubkey)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, m)
}

// handleAddMessage accepts a message signed by a registered member whose
// ephemeral key has not expired.
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	const op = "post message"
	var msg types.SignedMessage
	if !s.decode(w, r, &msg) {
		return
	}
	if msg.Text == "" {
		s.respondError(w, r, types.NewError(types.KindInput, op, errors.New("empty message")))
		return
	}
	pubkey, err := normalizeKey(msg.EphemeralPubkey)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	member, err := s.store.GetMember(r.Context(), pubkey)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondStatus(w, r, http.StatusForbidden, errUnknownSender)
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	expiry, err := time.Parse(time.RFC3339Nano, member.PubKeyExpiry)
	if err != nil || !expiry.After(s.now()) {
		s.respondStatus(w, r, http.StatusForbidden, errSenderExpired)
		return
	}
	if msg.AnonGroupID != "" && msg.AnonGroupID != member.GroupID {
		s.respondStatus(w, r, http.StatusForbidden, errWrongGroup)
		return
	}

	msg.EphemeralPubkey = pubkey
	msg.EphemeralPubkeyExpiry = member.PubKeyExpiry
	msg.AnonGroupID = member.GroupID
	msg.AnonGroupProvider = string(member.Provider)
	if err := types.VerifyMessage(msg); err != nil {
		s.respondStatus(w, r, http.StatusUnauthorized, err)
		return
	}
	if msg.Timestamp == "" {
		msg.Timestamp = s.now().UTC().Format(time.RFC3339)
	}

	stored, err := s.store.AddMessage(r.Context(), msg)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleLatestMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, r, errors.Wrap(storage.ErrInvalidLimit, err.Error()))
			return
		}
		limit = n
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}
	msgs, err := s.store.LatestMessages(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.messageID(w, r)
	if !ok {
		return
	}
	msg, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, msg)
}

func (s *Server) handleGetLikes(w http.ResponseWriter, r *http.Request) {
	id, ok := s.messageID(w, r)
	if !ok {
		return
	}
	n, err := s.store.Likes(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, likesResponse{ID: id, Likes: n})
}

func (s *Server) handleUpdateLikes(w http.ResponseWriter, r *http.Request) {
	id, ok := s.messageID(w, r)
	if !ok {
		return
	}
	var body likesRequest
	if !s.decode(w, r, &body) {
		return
	}
	n, err := s.store.UpdateLikes(r.Context(), id, body.Increase)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, likesResponse{ID: id, Likes: n})
}

func (s *Server) messageID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		s.respondError(w, r, types.NewError(types.KindInput, "parse message id", errors.Errorf("invalid id %q", chi.URLParam(r, "id"))))
		return 0, false
	}
	return uint32(id), true
}

func (p proofRequest) verifyRequest(srsPath string) (auth.VerifyRequest, error) {
	const op = "parse proof request"
	proof, err := hexutil.Decode(p.Proof)
	if err != nil {
		return auth.VerifyRequest{}, types.NewError(types.KindInput, op, errors.Wrap(err, "proof"))
	}
	inputs, err := pubsignals.FromStrings(p.PublicInputs)
	if err != nil {
		return auth.VerifyRequest{}, types.NewError(types.KindInput, op, err)
	}
	req := auth.VerifyRequest{SRSPath: srsPath, Proof: proof, PublicInputs: inputs}

	if c := p.Claimed; c != nil {
		modulus, err := field.ParseBigInt(c.Modulus)
		if err != nil {
			return auth.VerifyRequest{}, types.NewError(types.KindInput, op, errors.Wrap(err, "claimed modulus"))
		}
		pubkey, err := field.ParseBigInt(c.EphemeralPubkey)
		if err != nil {
			return auth.VerifyRequest{}, types.NewError(types.KindInput, op, errors.Wrap(err, "claimed pubkey"))
		}
		req.Claimed = &pubsignals.Values{Modulus: modulus, Domain: c.Domain, EphemeralPubkey: pubkey, Expiry: c.Expiry}
	}
	return req, nil
}

// normalizeKey renders a decimal or hex public key in decimal, the form
// members are stored under.
func normalizeKey(s string) (string, error) {
	v, err := field.ParseBigInt(s)
	if err != nil {
		return "", types.NewError(types.KindInput, "parse public key", err)
	}
	return v.String(), nil
}

func newVerifyResponse(res *auth.Result) verifyResponse {
	out := verifyResponse{State: string(res.State), Verified: res.Verified(), Record: res.Record}
	if res.Verified() {
		out.Fingerprint = res.Fingerprint.Hex()
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if res.RecordingErr != nil {
		out.RecordingError = res.RecordingErr.Error()
	}
	return out
}

// statusOf maps an error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidLimit):
		return http.StatusBadRequest
	case types.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	switch types.KindOf(err) {
	case types.KindInput, types.KindBinding, types.KindEncodingMismatch, types.KindKeyResolution:
		return http.StatusBadRequest
	case types.KindLocalVerification, types.KindOnChainRejection, types.KindProving:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func codeOf(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrInvalidLimit):
		return "invalid_limit"
	}
	return types.KindOf(err).String()
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, r, types.NewError(types.KindInput, "decode request", errors.WithStack(err)))
		return false
	}
	return true
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondStatus(w, r, statusOf(err), err)
}

func (s *Server) respondStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	code := codeOf(err)
	switch status {
	case http.StatusForbidden:
		code = "forbidden"
	case http.StatusUnauthorized:
		code = "unauthorized"
	}
	s.respondJSON(w, status, errorResponse{Error: err.Error(), Code: code, RequestID: RequestID(r.Context())})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}
