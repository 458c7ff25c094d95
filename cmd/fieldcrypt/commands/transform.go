package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/field"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/query"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
)

// RunTransform applies the save or read phase of m to the JSON document read from in
func RunTransform(ctx context.Context, prim *crypt.Primitive, m *schema.Model, phase field.Phase, logger interfaces.AuditLogger, in io.Reader, out io.Writer) error {
	doc, err := readJSONObject(in)
	if err != nil {
		return err
	}

	var opts []field.Option
	if logger != nil {
		opts = append(opts, field.WithAuditLogger(logger))
	}
	svc, err := field.NewService(prim, opts...)
	if err != nil {
		return err
	}

	switch phase {
	case field.PhaseSave:
		err = svc.Save(ctx, m, doc)
	case field.PhaseRead:
		err = svc.Read(ctx, m, doc)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
	if err != nil {
		return err
	}
	return writeJSON(out, doc)
}

// RunRewrite rewrites the JSON filter or update read from in
func RunRewrite(ctx context.Context, prim *crypt.Primitive, m *schema.Model, logger interfaces.AuditLogger, in io.Reader, out io.Writer) error {
	conditions, err := readJSONObject(in)
	if err != nil {
		return err
	}

	var opts []query.Option
	if logger != nil {
		opts = append(opts, query.WithAuditLogger(logger))
	}
	rw, err := query.NewRewriter(prim, opts...)
	if err != nil {
		return err
	}

	rewritten, err := rw.Rewrite(ctx, conditions, m)
	if err != nil {
		return err
	}
	return writeJSON(out, rewritten)
}

// RunPaths lists the encryption-enabled rule paths of m, one per line
func RunPaths(m *schema.Model, out io.Writer) error {
	for _, p := range m.EncryptedPaths() {
		if _, err := fmt.Fprintln(out, p); err != nil {
			return err
		}
	}
	return nil
}
