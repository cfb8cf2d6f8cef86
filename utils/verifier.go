// utils/verifier.go
package utils

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
)

type VerificationResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"` // valid, invalid, disposable, catch-all, unknown
	Details      string `json:"details"`
	IsReachable  bool   `json:"is_reachable"`
	IsBounceRisk bool   `json:"is_bounce_risk"`
	WHOIS        string `json:"whois,omitempty"`
}

var (
	disposableDomains = loadDisposableDomains()

	// Major free email providers. Professors occasionally list a personal
	// address instead of an institutional one.
	freeEmailProviders = []string{
		"gmail.com", "yahoo.com", "outlook.com", "hotmail.com",
		"aol.com", "protonmail.com", "icloud.com", "mail.com",
		"yandex.com", "zoho.com", "gmx.com",
	}

	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// Common email typos
	commonTypos = map[string]string{
		"gmai.com":   "gmail.com",
		"gmal.com":   "gmail.com",
		"gmail.co":   "gmail.com",
		"yaho.com":   "yahoo.com",
		"hotmai.com": "hotmail.com",
		"outlok.com": "outlook.com",
	}

	// Domain to MX cache
	mxCache = struct {
		sync.RWMutex
		m map[string][]*net.MX
	}{m: make(map[string][]*net.MX)}

	// SMTP connection timeout
	smtpTimeout = 15 * time.Second
)

// VerifyEmailAddress performs comprehensive verification of an outreach
// address before it receives mail.
func VerifyEmailAddress(email string) (*VerificationResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &VerificationResult{
		Email:        email,
		Status:       "unknown",
		IsReachable:  false,
		IsBounceRisk: true,
	}

	// 1. Basic syntax validation using checkmail
	if err := checkmail.ValidateFormat(email); err != nil {
		result.Status = "invalid"
		result.Details = "Invalid email format: " + err.Error()
		return result, nil
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		result.Status = "invalid"
		result.Details = "Invalid email format"
		return result, nil
	}

	localPart, domain := parts[0], parts[1]

	// 2. Check for common typos
	if suggestedDomain, ok := commonTypos[domain]; ok {
		result.Status = "invalid"
		result.Details = fmt.Sprintf("Possible typo, did you mean %s@%s?", localPart, suggestedDomain)
		return result, nil
	}

	// 3. Disposable email check
	if isDisposableDomain(domain) {
		result.Status = "disposable"
		result.Details = "Disposable email domain"
		return result, nil
	}

	// 4. DNS/MX record check with checkmail
	if err := checkmail.ValidateHost(domain); err != nil {
		result.Status = "invalid"
		result.Details = "Domain validation failed: " + err.Error()
		return result, nil
	}

	// 5. SMTP-level reachability probe
	smtpResult, err := verifySMTP(domain, email)
	if err != nil {
		return result, err
	}

	// 6. Add WHOIS data if available
	if whoisInfo, err := whois.Whois(domain); err == nil {
		smtpResult.WHOIS = whoisInfo
	}

	return smtpResult, nil
}

// VerifyProfessorEmail runs verification for a professor's address and
// persists the outcome on the professor row.
func VerifyProfessorEmail(db *gorm.DB, prof *models.Professor) (*VerificationResult, error) {
	if prof.Email == "" || !emailRegex.MatchString(prof.Email) {
		result := &VerificationResult{
			Email:   prof.Email,
			Status:  "invalid",
			Details: "No valid email address on record",
		}
		if err := persistVerification(db, prof, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	result, err := VerifyEmailAddress(prof.Email)
	if err != nil {
		return nil, err
	}
	if err := persistVerification(db, prof, result); err != nil {
		return nil, err
	}
	return result, nil
}

func persistVerification(db *gorm.DB, prof *models.Professor, result *VerificationResult) error {
	verified := result.Status == "valid" || result.Status == "catch-all"
	err := db.Model(&models.Professor{}).Where("id = ?", prof.ID).Updates(map[string]interface{}{
		"email_verified":       verified,
		"email_verify_status":  result.Status,
		"email_verify_details": result.Details,
	}).Error
	if err != nil {
		return err
	}
	prof.EmailVerified = verified
	prof.EmailVerifyStatus = result.Status
	prof.EmailVerifyDetails = result.Details
	return nil
}

// ExtractDomain extracts domain from email address
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func isDisposableDomain(domain string) bool {
	return disposableDomains[domain]
}

func isFreeEmailProvider(domain string) bool {
	for _, provider := range freeEmailProviders {
		if domain == provider {
			return true
		}
	}
	return false
}

func verifySMTP(domain, email string) (*VerificationResult, error) {
	result := &VerificationResult{
		Email:        email,
		Status:       "unknown",
		IsReachable:  false,
		IsBounceRisk: true,
	}

	// Get MX records with caching
	mxRecords, err := getMXRecords(domain)
	if err != nil || len(mxRecords) == 0 {
		result.Status = "invalid"
		result.Details = "Domain has no MX records"
		return result, nil
	}

	// Try multiple MX servers
	for _, mx := range mxRecords {
		mailServer := strings.TrimSuffix(mx.Host, ".")

		// Try common ports
		portsToTry := []string{"25", "587", "465"}
		if isFreeEmailProvider(domain) {
			// For free providers, try submission ports first
			portsToTry = []string{"587", "465", "25"}
		}

		for _, port := range portsToTry {
			addr := fmt.Sprintf("%s:%s", mailServer, port)
			smtpResult, err := checkSMTP(addr, domain, email)
			if err == nil {
				return smtpResult, nil
			}
		}
	}

	result.Details = "All verification attempts failed"
	return result, nil
}

func getMXRecords(domain string) ([]*net.MX, error) {
	// Check cache first
	mxCache.RLock()
	if records, ok := mxCache.m[domain]; ok {
		mxCache.RUnlock()
		return records, nil
	}
	mxCache.RUnlock()

	// Lookup fresh records with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resolver net.Resolver
	mxRecords, err := resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	// Update cache
	mxCache.Lock()
	mxCache.m[domain] = mxRecords
	mxCache.Unlock()

	return mxRecords, nil
}

func checkSMTP(addr, domain, email string) (*VerificationResult, error) {
	conn, err := net.DialTimeout("tcp", addr, smtpTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, domain)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	// Set timeout for each SMTP command
	deadline := time.Now().Add(smtpTimeout)
	conn.SetDeadline(deadline)

	// 1. Send HELO/EHLO
	if err = client.Hello(verifyHelloName()); err != nil {
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "HELO failed: " + err.Error(),
			IsBounceRisk: true,
		}, nil
	}

	// 2. Check if server supports TLS (optional)
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(nil); err != nil {
			return &VerificationResult{
				Email:        email,
				Status:       "unknown",
				Details:      "STARTTLS failed: " + err.Error(),
				IsBounceRisk: true,
			}, nil
		}
	}

	// 3. MAIL FROM check
	if err = client.Mail(verifyFromAddress()); err != nil {
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "MAIL FROM failed: " + err.Error(),
			IsBounceRisk: true,
		}, nil
	}

	// 4. RCPT TO check - this is the key reachability test
	err = client.Rcpt(email)
	if err == nil {
		return &VerificationResult{
			Email:        email,
			Status:       "valid",
			Details:      "Recipient accepted",
			IsReachable:  true,
			IsBounceRisk: false,
		}, nil
	}

	// Analyze error response
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "250"):
		// Some servers return 250 even on failure
		return &VerificationResult{
			Email:        email,
			Status:       "catch-all",
			Details:      "Server accepts all emails (catch-all)",
			IsReachable:  true,
			IsBounceRisk: false,
		}, nil
	case strings.Contains(errMsg, "550"):
		// Mailbox doesn't exist
		return &VerificationResult{
			Email:        email,
			Status:       "invalid",
			Details:      "Mailbox doesn't exist",
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	case strings.Contains(errMsg, "421"), strings.Contains(errMsg, "450"), strings.Contains(errMsg, "451"):
		// Temporary failures
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "Temporary failure: " + err.Error(),
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	default:
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "SMTP error: " + err.Error(),
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	}
}

func verifyFromAddress() string {
	if from := config.AppConfig.SMTP.FromEmail; from != "" {
		return from
	}
	return "noreply@gradreach.app"
}

func verifyHelloName() string {
	if from := config.AppConfig.SMTP.FromEmail; from != "" {
		if idx := strings.LastIndex(from, "@"); idx != -1 {
			return "verify." + from[idx+1:]
		}
	}
	return "verify.gradreach.app"
}

func loadDisposableDomains() map[string]bool {
	domains := make(map[string]bool)
	for _, d := range strings.Split(disposableDomainList, "\n") {
		d = strings.TrimSpace(d)
		if d != "" {
			domains[d] = true
		}
	}
	return domains
}

const disposableDomainList = `
mailinator.com
mailinator.net
mailinator.org
mailinator2.com
tempmail.org
temp-mail.org
temp-mail.io
tempmail2.com
tempmailer.com
tempmailer.de
tempomail.fr
tempinbox.com
tempmailaddress.com
temporaryinbox.com
temporaryemail.net
temporarioemail.com.br
10minutemail.com
10minutemail.co.za
20minutemail.com
30minutemail.com
60minutemail.com
guerrillamail.com
guerrillamail.biz
guerrillamail.de
guerrillamail.info
guerrillamail.net
guerrillamail.org
guerrillamailblock.com
guerillamail.com
guerillamail.net
guerillamail.org
trashmail.com
trashmail.net
trashmail.me
trashmail.at
trashmail.de
trashmail.org
trashmail.ws
trash-mail.at
trash-mail.com
trash-mail.de
trashymail.com
trashymail.net
yopmail.com
yopmail.fr
yopmail.net
maildrop.cc
dispostable.com
fakeinbox.com
throwawaymail.com
throwawayemailaddress.com
mailnesia.com
getairmail.com
mytemp.email
fake-mail.com
mail-temp.com
tempail.com
mailmetrash.com
discard.email
discardmail.com
discardmail.de
mailcatch.com
tempemail.net
tempemail.biz
tempemail.com
mintemail.com
notmailinator.com
spamgourmet.com
spamhole.com
spam.la
spamspot.com
spambox.us
spamfree24.org
spamfree.eu
spam4.me
spamdecoy.net
sharklasers.com
maildu.de
mailexpire.com
mailforspam.com
mailsac.com
mailslite.com
mailtemp.info
mailtrash.net
meltmail.com
mycleaninbox.net
myphantomemail.com
mytempemail.com
mytempmail.com
mytrashmail.com
neverbox.com
no-spam.ws
nospammail.net
objectmail.com
oneoffemail.com
onewaymail.com
pookmail.com
proxymail.eu
quickinbox.com
rejectmail.com
safe-mail.net
selfdestructingmail.com
sneakemail.com
snkmail.com
sofort-mail.de
sogetthis.com
spamavert.com
spambog.com
spambog.de
spambog.ru
spamcannon.com
spamcannon.net
spamcero.com
spamcon.org
spamcorptastic.com
spamcowboy.com
spamday.com
spamex.com
spamify.com
spaminator.de
spamkill.info
spaml.com
spaml.de
spammotel.com
spamobox.com
spamsalad.in
spamslicer.com
spamstack.net
spamthis.co.uk
spamtrail.com
suremail.info
tilien.com
tmailinator.com
tradermail.info
trashdevil.com
trashdevil.de
trashemail.de
trashmailer.com
wegwerfadresse.de
wegwerfemail.com
wegwerfemail.de
wegwerfmail.de
wegwerfmail.info
wegwerfmail.net
wegwerfmail.org
wh4f.org
whyspam.me
willselfdestruct.com
yep.it
zehnminutenmail.de
zippymail.info
zoemail.net
zoemail.org`
