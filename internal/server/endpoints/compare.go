package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/outline/internal/api"
	"github.com/jackzampolin/outline/internal/compare"
	"github.com/jackzampolin/outline/internal/svcctx"
	"github.com/jackzampolin/outline/internal/types"
)

// maxBodyBytes bounds request bodies carrying chapter lists.
const maxBodyBytes = 32 << 20

// PatternsRequest is the body of POST /v1/patterns.
type PatternsRequest struct {
	Template []types.Chapter `json:"template"`
	Target   []types.Chapter `json:"target"`
}

// CompareEndpoint handles POST /v1/compare.
type CompareEndpoint struct{}

func (e *CompareEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/v1/compare", e.handler
}

func (e *CompareEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Compare two outlines
//	@Description	Maps every template chapter onto the target outline
//	@Tags			compare
//	@Accept			json
//	@Produce		json
//	@Param			request	body		compare.Request	true	"Template and target chapters"
//	@Success		200		{object}	compare.Response
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/v1/compare [post]
func (e *CompareEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	comparer := svcctx.ComparerFrom(r.Context())
	if comparer == nil {
		writeError(w, http.StatusServiceUnavailable, "comparison service not available")
		return
	}

	var req compare.Request
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := comparer.Compare(r.Context(), req)
	switch {
	case errors.Is(err, compare.ErrInvalidMapping), errors.Is(err, compare.ErrUnknownOracle):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		svcctx.LoggerFrom(r.Context()).Error("comparison failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *CompareEndpoint) Command(getServerURL func() string) *cobra.Command {
	var oracleName, overrides string
	var save bool

	cmd := &cobra.Command{
		Use:   "compare <template> <target>",
		Short: "Compare two outline files on the server",
		Long: `Load two outline files locally (HTML, PDF bookmarks, YAML or JSON)
and send their chapter lists to the running server for mapping.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := compare.LoadFiles(args[0], args[1])
			if err != nil {
				return err
			}
			req.Oracle = oracleName
			req.Save = save
			if overrides != "" {
				if !json.Valid([]byte(overrides)) {
					return fmt.Errorf("--mapping must be a JSON object")
				}
				req.Mapping = json.RawMessage(overrides)
			}

			client := api.NewClient(getServerURL())
			var resp compare.Response
			if err := client.Post(cmd.Context(), "/v1/compare", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&oracleName, "oracle", "", "Semantic oracle: llm or text (default from config)")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the run on the server")
	cmd.Flags().StringVar(&overrides, "mapping", "", `Mapping overrides as JSON, e.g. '{"similarity_threshold":0.6}'`)
	return cmd
}

// PatternsEndpoint handles POST /v1/patterns.
type PatternsEndpoint struct{}

func (e *PatternsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/v1/patterns", e.handler
}

func (e *PatternsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Detect renumbering patterns
//	@Description	Runs renumbering detection between two outlines without mapping
//	@Tags			compare
//	@Accept			json
//	@Produce		json
//	@Param			request	body		PatternsRequest	true	"Template and target chapters"
//	@Success		200		{object}	compare.PatternReport
//	@Failure		400		{object}	ErrorResponse
//	@Router			/v1/patterns [post]
func (e *PatternsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	comparer := svcctx.ComparerFrom(r.Context())
	if comparer == nil {
		writeError(w, http.StatusServiceUnavailable, "comparison service not available")
		return
	}

	var req PatternsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, comparer.Patterns(req.Template, req.Target))
}

func (e *PatternsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns <template> <target>",
		Short: "Detect renumbering patterns on the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := compare.LoadFiles(args[0], args[1])
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp compare.PatternReport
			if err := client.Post(cmd.Context(), "/v1/patterns", PatternsRequest{Template: req.Template, Target: req.Target}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// decodeBody decodes a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
