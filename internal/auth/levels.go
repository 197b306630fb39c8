// Package auth - levels.go defines the single permission level enum and the
// per-resource permission map carried in admin tokens.
package auth

import (
	"fmt"
	"strings"
)

// Level is a totally ordered permission level. A higher level subsumes every
// lower one, so ADMIN implies DELETE, UPDATE, CREATE, EXECUTE and READ.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelExecute
	LevelCreate
	LevelUpdate
	LevelDelete
	LevelAdmin
)

var levelNames = [...]string{
	LevelNone:    "NONE",
	LevelRead:    "READ",
	LevelExecute: "EXECUTE",
	LevelCreate:  "CREATE",
	LevelUpdate:  "UPDATE",
	LevelDelete:  "DELETE",
	LevelAdmin:   "ADMIN",
}

// levelActions is the canonical catalog action for each level.
var levelActions = [...]string{
	LevelNone:    "",
	LevelRead:    "read",
	LevelExecute: "execute",
	LevelCreate:  "create",
	LevelUpdate:  "update",
	LevelDelete:  "delete",
	LevelAdmin:   "admin",
}

// actionLevels is the only mapping from catalog actions to levels.
var actionLevels = map[string]Level{
	"read":    LevelRead,
	"list":    LevelRead,
	"execute": LevelExecute,
	"create":  LevelCreate,
	"update":  LevelUpdate,
	"delete":  LevelDelete,
	"admin":   LevelAdmin,
}

func (l Level) valid() bool {
	return l >= LevelNone && l <= LevelAdmin
}

func (l Level) String() string {
	if !l.valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Action returns the catalog action that grants exactly this level.
func (l Level) Action() string {
	if !l.valid() {
		return ""
	}
	return levelActions[l]
}

// Satisfies reports whether holding l is enough for required.
func (l Level) Satisfies(required Level) bool {
	return required != LevelNone && l >= required
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	if !l.valid() {
		return nil, fmt.Errorf("invalid permission level %d", int(l))
	}
	return []byte(levelNames[l]), nil
}

// UnmarshalText decodes a level name. Unknown names decode as LevelNone.
func (l *Level) UnmarshalText(b []byte) error {
	*l, _ = ParseLevel(string(b))
	return nil
}

// ParseAction maps a catalog action (read, list, execute, create, update,
// delete, admin) to its level.
func ParseAction(action string) (Level, bool) {
	l, ok := actionLevels[strings.ToLower(strings.TrimSpace(action))]
	return l, ok
}

// ParseLevel maps a level name such as "UPDATE" to its level.
func ParseLevel(name string) (Level, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for l, n := range levelNames {
		if n == name {
			return Level(l), true
		}
	}
	return LevelNone, false
}

// PermissionMap is the effective level per resource (feature slug).
type PermissionMap map[string]Level

// Grants reports whether the map holds at least level on resource.
func (p PermissionMap) Grants(resource string, level Level) bool {
	return p[resource].Satisfies(level)
}

// Merge raises the level on resource to level if it is higher.
func (p PermissionMap) Merge(resource string, level Level) {
	if level > p[resource] {
		p[resource] = level
	}
}
