package accounting

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PINVerifier checks the dual approval supplied with a late void.
type PINVerifier interface {
	VerifyDualApproval(approval *DualApproval) bool
}

// DualPIN verifies accountant and manager PINs. Configured values starting with
// "$2" are treated as bcrypt hashes, anything else as a plain secret.
type DualPIN struct {
	accountant string
	manager    string
}

// NewDualPIN constructs a verifier from the configured PINs.
func NewDualPIN(accountant, manager string) DualPIN {
	return DualPIN{accountant: strings.TrimSpace(accountant), manager: strings.TrimSpace(manager)}
}

// VerifyDualApproval succeeds only if both PINs match. Both are always checked.
func (p DualPIN) VerifyDualApproval(approval *DualApproval) bool {
	if approval == nil {
		return false
	}
	accountantOK := matchPIN(p.accountant, approval.AccountantPIN)
	managerOK := matchPIN(p.manager, approval.ManagerPIN)
	return accountantOK && managerOK
}

func matchPIN(secret, supplied string) bool {
	if secret == "" || supplied == "" {
		return false
	}
	if strings.HasPrefix(secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(supplied)) == 1
}
