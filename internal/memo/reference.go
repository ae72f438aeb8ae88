package memo

import (
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"memos/internal/user"
)

// References are "owner-number" or "owner-number-version" tokens. A
// token is valid only if it resolves to a memo in Active or Obsolete
// state; everything else is dropped but reported.

type parsedRef struct {
	Owner   string
	Number  int
	Version *string // nil means latest
}

func parseRef(token string) (parsedRef, bool) {
	parts := strings.Split(token, "-")
	if len(parts) < 2 || len(parts) > 3 {
		return parsedRef{}, false
	}
	number, err := strconv.Atoi(parts[1])
	if err != nil || parts[0] == "" {
		return parsedRef{}, false
	}
	ref := parsedRef{Owner: parts[0], Number: number}
	if len(parts) == 3 {
		v := strings.ToUpper(parts[2])
		if VersionOrdinal(v) == 0 {
			return parsedRef{}, false
		}
		ref.Version = &v
	}
	return ref, true
}

// resolveRef finds the memo a token points at: the exact version when
// one is given, otherwise the latest version of the number.
func resolveRef(tx *gorm.DB, ref parsedRef) (*Memo, error) {
	q := tx.Where("owner_id = ? AND number = ?", ref.Owner, ref.Number)
	if ref.Version != nil {
		q = q.Where("version = ?", *ref.Version)
	}
	var m Memo
	err := q.Order("length(version) desc, version desc").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// validReferences splits a raw list and partitions it into resolvable
// references and invalid tokens.
func validReferences(tx *gorm.DB, raw string) ([]parsedRef, []string, error) {
	var valid []parsedRef
	var invalid []string
	for _, token := range user.SplitNames(raw) {
		ref, ok := parseRef(token)
		if !ok {
			invalid = append(invalid, token)
			continue
		}
		target, err := resolveRef(tx, ref)
		if err != nil {
			return nil, nil, err
		}
		if target == nil || (target.State != StateActive && target.State != StateObsolete) {
			invalid = append(invalid, token)
			continue
		}
		valid = append(valid, ref)
	}
	return valid, invalid, nil
}

// setReferences replaces the memo's outgoing edges with the valid
// subset of raw, reporting the dropped tokens.
func setReferences(tx *gorm.DB, m *Memo, raw string) ([]string, error) {
	m.ReferenceNames = raw
	if err := tx.Where("source_id = ?", m.ID).Delete(&Reference{}).Error; err != nil {
		return nil, err
	}
	valid, invalid, err := validReferences(tx, raw)
	if err != nil {
		return nil, err
	}
	for _, ref := range valid {
		edge := Reference{
			SourceID:   m.ID,
			RefOwnerID: ref.Owner,
			RefNumber:  ref.Number,
			RefVersion: ref.Version,
		}
		if err := tx.Create(&edge).Error; err != nil {
			return nil, err
		}
	}
	return invalid, nil
}

// forwardRefs returns the memo's outgoing references as strings, in
// insertion order.
func forwardRefs(tx *gorm.DB, memoID uint64) ([]string, error) {
	var edges []Reference
	if err := tx.Where("source_id = ?", memoID).Order("id asc").Find(&edges).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(edges))
	for i := range edges {
		out = append(out, edges[i].String())
	}
	return out, nil
}

// backRefs returns every memo citing this one, deduplicated. An edge
// with a version matches only that version; a versionless edge
// matches all versions of the number.
func backRefs(tx *gorm.DB, m *Memo) ([]string, error) {
	var edges []Reference
	err := tx.Where("ref_owner_id = ? AND ref_number = ?", m.OwnerID, m.Number).Find(&edges).Error
	if err != nil {
		return nil, err
	}
	var out []string
	seen := map[string]bool{}
	for _, edge := range edges {
		if edge.RefVersion != nil && *edge.RefVersion != m.Version {
			continue
		}
		var src Memo
		err := tx.Where("id = ?", edge.SourceID).First(&src).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s := src.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
