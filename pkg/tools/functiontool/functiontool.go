// Package functiontool builds a typed tool from a plain Go function. The
// argument schema is generated from struct tags, so simple tools need no
// hand-written descriptor.
//
// Supported tags:
//   - json:"name"                        parameter name
//   - json:",omitempty"                  optional parameter
//   - jsonschema:"required"              explicitly required
//   - jsonschema:"description=..."       parameter description
//   - jsonschema:"enum=a|b"              allowed values
//   - jsonschema:"minimum=N,maximum=M"   numeric constraints
//
// Example:
//
//	type SearchArgs struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	    Limit int    `json:"limit,omitempty" jsonschema:"description=Max results,default=10"`
//	}
//
//	searchTool, err := functiontool.New(
//	    functiontool.Config{Name: "search", Description: "Search documents"},
//	    func(ctx context.Context, args SearchArgs) (string, error) {
//	        // implementation
//	    },
//	)
//
// For tools with dynamic schemas or internal state, implement tools.Tool
// directly.
package functiontool

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/quillworks/quill/pkg/tools"
)

// Config describes the tool being built.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required). Shown to the
	// model when it decides which tool to call.
	Description string

	// Timeout overrides the executor's default per-call timeout.
	Timeout time.Duration

	// CacheTTL overrides the dedupe cache's default TTL.
	CacheTTL time.Duration

	// DisableCache opts the tool out of result deduplication.
	DisableCache bool

	// AllowUnknownFields permits argument fields absent from the schema.
	AllowUnknownFields bool
}

// New creates a tools.Tool from a typed function. Args must be a struct
// whose json and jsonschema tags define the parameters.
func New[Args any](cfg Config, fn func(context.Context, Args) (string, error)) (tools.Tool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("function tool requires a name")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("function tool %s requires a description", cfg.Name)
	}
	if fn == nil {
		return nil, fmt.Errorf("function tool %s requires a function", cfg.Name)
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{config: cfg, fn: fn, schema: schema}, nil
}

// NewWithValidation creates a tool whose arguments pass a custom check
// before the function runs. Use it for rules struct tags cannot express.
func NewWithValidation[Args any](
	cfg Config,
	fn func(context.Context, Args) (string, error),
	validate func(Args) error,
) (tools.Tool, error) {
	if validate == nil {
		return New(cfg, fn)
	}
	return New(cfg, func(ctx context.Context, args Args) (string, error) {
		if err := validate(args); err != nil {
			return "", tools.NewToolError(tools.ErrorClassArgument, "argument validation failed", err)
		}
		return fn(ctx, args)
	})
}

type functionTool[Args any] struct {
	config Config
	fn     func(context.Context, Args) (string, error)
	schema map[string]any
}

func (t *functionTool[Args]) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:               t.config.Name,
		Description:        t.config.Description,
		Parameters:         t.schema,
		Timeout:            t.config.Timeout,
		CacheTTL:           t.config.CacheTTL,
		DisableCache:       t.config.DisableCache,
		AllowUnknownFields: t.config.AllowUnknownFields,
	}
}

func (t *functionTool[Args]) Execute(ctx context.Context, args map[string]any) (string, error) {
	var typed Args
	if err := decodeArgs(args, &typed); err != nil {
		return "", tools.NewToolError(tools.ErrorClassArgument, "failed to decode arguments", err)
	}
	return t.fn(ctx, typed)
}

// decodeArgs maps validated arguments onto the typed struct, honoring json
// tag names and coercing compatible scalar types.
func decodeArgs(args map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		Squash:           true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
