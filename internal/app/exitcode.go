package app

import (
	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/primary"
)

// ExitCodeFor translates an hoperrors.Kind to the CLI exit-code contract of
// spec.md §6. The translation happens in exactly one place, as
// SPEC_FULL.md §7 requires; the CLI layer reuses it directly for the
// Migrator, which sits outside the Orchestrator interface.
func ExitCodeFor(err error) primary.ExitCode {
	if err == nil {
		return primary.ExitSuccess
	}
	switch hoperrors.KindOf(err) {
	case hoperrors.KindPrecondition:
		return primary.ExitPrecondition
	case hoperrors.KindCoordination:
		return primary.ExitCoordination
	case hoperrors.KindValidation:
		return primary.ExitValidation
	case hoperrors.KindEnvironment:
		return primary.ExitEnvironment
	case hoperrors.KindInvariant:
		return primary.ExitPrecondition
	default:
		return primary.ExitInternal
	}
}
