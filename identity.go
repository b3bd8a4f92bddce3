// identity.go: User/group name to numeric ID resolution
//
// Resolution is an injected capability so tests can substitute an
// in-memory fake for the id(1) shell-out.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// IdentityResolver resolves a textual user or group name to its numeric
// host ID. Implementations may block (external lookups); the evaluator
// memoizes results per pass so each distinct name resolves once.
type IdentityResolver interface {
	Resolve(kind SubID, name string) (uint32, error)
}

// ExecIdentityResolver resolves names by invoking id(1): `id -u name`
// for users, `id -g name` for groups.
type ExecIdentityResolver struct{}

// Resolve implements IdentityResolver.
func (ExecIdentityResolver) Resolve(kind SubID, name string) (uint32, error) {
	flag := "-u"
	if kind == GID {
		flag = "-g"
	}

	out, err := exec.Command("id", flag, name).Output()
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeIdentityLookup, "id command failed").
			WithContext("kind", kind.String()).
			WithContext("name", name)
	}

	id, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 32)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeIdentityLookup, "id output is not a valid numeric ID").
			WithContext("kind", kind.String()).
			WithContext("name", name)
	}

	return uint32(id), nil
}

// memoKey caches one (kind, name) resolution.
type memoKey struct {
	kind SubID
	name string
}

type memoResult struct {
	id  uint32
	err error
}

// memoResolver wraps an IdentityResolver with a per-evaluation-pass
// cache: one external invocation per distinct name, not per idmap line.
// Failures are cached too, so a broken name is not re-resolved for
// every container referencing it.
type memoResolver struct {
	inner IdentityResolver
	cache map[memoKey]memoResult
}

func newMemoResolver(inner IdentityResolver) *memoResolver {
	return &memoResolver{inner: inner, cache: make(map[memoKey]memoResult)}
}

func (m *memoResolver) Resolve(kind SubID, name string) (uint32, error) {
	key := memoKey{kind: kind, name: name}
	if res, ok := m.cache[key]; ok {
		return res.id, res.err
	}

	id, err := m.inner.Resolve(kind, name)
	m.cache[key] = memoResult{id: id, err: err}
	return id, err
}
