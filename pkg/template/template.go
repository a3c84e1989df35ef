// Package template resolves {{name}} placeholders in block configuration values
// against an owner's encrypted environment variables.
package template

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/secrets"
)

// placeholderPattern matches {{name}} where name is any run excluding '}'.
// Replacement is textual and non-recursive.
var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// UnknownVariableError indicates a placeholder referenced a variable that does not
// exist in the owner's environment.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("environment variable %q was not found", e.Name)
}

// DecryptionError indicates a referenced variable exists but could not be
// decrypted.
type DecryptionError struct {
	Name string
	Err  error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt environment variable %q: %v", e.Name, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Resolver substitutes placeholders against one owner's environment, decrypting
// each referenced variable at most once. A Resolver is scoped to a single
// execution request and is not safe for concurrent use.
type Resolver struct {
	variables map[string]string // name -> ciphertext
	decryptor secrets.Decryptor
	resolved  map[string]string // name -> plaintext, lazily filled
}

func NewResolver(variables map[string]string, decryptor secrets.Decryptor) *Resolver {
	return &Resolver{
		variables: variables,
		decryptor: decryptor,
		resolved:  make(map[string]string),
	}
}

func (r *Resolver) lookup(ctx context.Context, name string) (string, error) {
	if plaintext, ok := r.resolved[name]; ok {
		return plaintext, nil
	}

	ciphertext, ok := r.variables[name]
	if !ok {
		return "", &UnknownVariableError{Name: name}
	}

	plaintext, err := r.decryptor.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", &DecryptionError{Name: name, Err: err}
	}

	r.resolved[name] = plaintext

	return plaintext, nil
}

// Resolve replaces every placeholder in value, left to right. The first unknown or
// undecryptable variable aborts the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	var builder strings.Builder

	last := 0

	for _, m := range matches {
		builder.WriteString(value[last:m[0]])

		name := value[m[2]:m[3]]

		plaintext, err := r.lookup(ctx, name)
		if err != nil {
			return "", err
		}

		builder.WriteString(plaintext)

		last = m[1]
	}

	builder.WriteString(value[last:])

	return builder.String(), nil
}

// ResolveAll decrypts the full variable set and returns it as plaintext, reusing
// anything already decrypted. Variables are visited in sorted order so the first
// failure is deterministic.
func (r *Resolver) ResolveAll(ctx context.Context) (map[string]string, error) {
	names := make([]string, 0, len(r.variables))
	for name := range r.variables {
		names = append(names, name)
	}

	sort.Strings(names)

	plain := make(map[string]string, len(names))

	for _, name := range names {
		value, err := r.lookup(ctx, name)
		if err != nil {
			return nil, err
		}

		plain[name] = value
	}

	return plain, nil
}

// ResolveValue substitutes string values and passes every other type through
// unchanged.
func (r *Resolver) ResolveValue(ctx context.Context, value any) (any, error) {
	str, ok := value.(string)
	if !ok {
		return value, nil
	}

	return r.Resolve(ctx, str)
}

// ResolveBlockStates substitutes placeholders across every config field of every
// block, producing a fresh map keyed by block ID. Fields are visited in sorted
// order so a failing resolution is deterministic; any single failure aborts the
// whole set.
func ResolveBlockStates(ctx context.Context, blocks []*models.BlockState, resolver *Resolver) (map[string]*models.BlockState, error) {
	resolved := make(map[string]*models.BlockState, len(blocks))

	for _, block := range blocks {
		fields := make([]string, 0, len(block.Config))
		for field := range block.Config {
			fields = append(fields, field)
		}

		sort.Strings(fields)

		config := make(map[string]any, len(block.Config))

		for _, field := range fields {
			value, err := resolver.ResolveValue(ctx, block.Config[field])
			if err != nil {
				return nil, fmt.Errorf("block %s field %s: %w", block.ID, field, err)
			}

			config[field] = value
		}

		resolved[block.ID] = &models.BlockState{
			ID:     block.ID,
			Name:   block.Name,
			Type:   block.Type,
			Config: config,
		}
	}

	return resolved, nil
}
