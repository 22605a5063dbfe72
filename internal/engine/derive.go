package engine

import (
	"github.com/roach88/nowhere/internal/ir"
)

// EffectKindArtifact is the effect kind ArtifactDeriver emits.
const EffectKindArtifact = "artifact.upsert"

// EffectDeriver turns a sealed request and digest into effects. It must be
// a pure function of its inputs: replay re-derives and compares.
type EffectDeriver interface {
	Derive(req ir.CanonicalRequest, digest ir.ResponseDigest) ([]ir.Effect, error)
}

// DeriverFunc adapts a function to the EffectDeriver interface.
type DeriverFunc func(req ir.CanonicalRequest, digest ir.ResponseDigest) ([]ir.Effect, error)

// Derive implements EffectDeriver.
func (f DeriverFunc) Derive(req ir.CanonicalRequest, digest ir.ResponseDigest) ([]ir.Effect, error) {
	return f(req, digest)
}

// ArtifactDeriver emits one artifact.upsert effect per digest item.
//
// The key binds the request hash to the item identity, so re-running the
// same request upserts the same rows while different requests never
// overwrite each other's observations.
type ArtifactDeriver struct{}

// Derive implements EffectDeriver.
func (ArtifactDeriver) Derive(req ir.CanonicalRequest, digest ir.ResponseDigest) ([]ir.Effect, error) {
	reqHash, err := ir.RequestHash(req)
	if err != nil {
		return nil, err
	}
	effects := make([]ir.Effect, 0, len(digest.Items))
	for _, item := range digest.Items {
		effects = append(effects, ir.Effect{
			Kind: EffectKindArtifact,
			Key:  ir.TextHash(reqHash + "\x1f" + item.IDHash),
			Payload: ir.IRObject{
				"actor_id":     ir.IRString(req.ActorID),
				"request_kind": ir.IRString(req.Kind),
				"id_hash":      ir.IRString(item.IDHash),
				"content_hash": ir.IRString(item.ContentHash),
				"rank":         ir.IRInt(item.Rank),
				"category":     ir.IRString(item.Category),
				"status":       ir.IRInt(digest.Status),
			},
		})
	}
	return effects, nil
}

func noEffects(ir.CanonicalRequest, ir.ResponseDigest) ([]ir.Effect, error) {
	return []ir.Effect{}, nil
}
