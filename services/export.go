package services

import (
	"fmt"
	"strings"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/vault"
)

const (
	ExportFormatAWS    = "aws"
	ExportFormatRclone = "rclone"
)

// ExportResult is a plain-text configuration fragment built in memory;
// the transport layer must send it with Cache-Control: no-store
type ExportResult struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ProfileExportService renders connection profiles as aws-cli or rclone
// configuration fragments with decrypted credentials
type ProfileExportService struct {
	vault  *vault.Vault
	logger *log.Logger
}

func NewProfileExportService(v *vault.Vault, logger *log.Logger) *ProfileExportService {
	if logger == nil {
		logger = log.New("export-service")
	}
	return &ProfileExportService{
		vault:  v,
		logger: logger,
	}
}

// Export builds the configuration fragment for one connection. The
// bucket argument overrides the profile default when set.
func (s *ProfileExportService) Export(connectionID int64, format, bucket string) (*ExportResult, error) {
	conn, err := s.vault.GetConnection(connectionID)
	if err != nil {
		return nil, err
	}
	secret, err := s.vault.DecryptSecret(conn)
	if err != nil {
		return nil, err
	}
	if bucket == "" {
		bucket = conn.Bucket
	}

	switch format {
	case ExportFormatAWS:
		return s.renderAWS(conn, secret), nil
	case ExportFormatRclone:
		return s.renderRclone(conn, secret, bucket), nil
	default:
		return nil, apperr.Newf(apperr.InvalidInput, "unknown export format %q", format)
	}
}

func (s *ProfileExportService) renderAWS(conn *vault.Connection, secret string) *ExportResult {
	var b strings.Builder
	fmt.Fprintf(&b, "[profile %s]\n", conn.ProfileName)
	fmt.Fprintf(&b, "aws_access_key_id = %s\n", conn.AccessKeyID)
	fmt.Fprintf(&b, "aws_secret_access_key = %s\n", secret)
	if conn.Region != "" {
		fmt.Fprintf(&b, "region = %s\n", conn.Region)
	}
	if !isAWSEndpoint(conn.Endpoint) {
		fmt.Fprintf(&b, "endpoint_url = %s\n", conn.Endpoint)
	}
	return &ExportResult{
		Filename: fmt.Sprintf("%s.aws-config", conn.ProfileName),
		Content:  b.String(),
	}
}

func (s *ProfileExportService) renderRclone(conn *vault.Connection, secret, bucket string) *ExportResult {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", conn.ProfileName)
	b.WriteString("type = s3\n")
	fmt.Fprintf(&b, "provider = %s\n", rcloneProvider(conn.Endpoint))
	fmt.Fprintf(&b, "access_key_id = %s\n", conn.AccessKeyID)
	fmt.Fprintf(&b, "secret_access_key = %s\n", secret)
	fmt.Fprintf(&b, "endpoint = %s\n", conn.Endpoint)
	if conn.Region != "" {
		fmt.Fprintf(&b, "region = %s\n", conn.Region)
	}
	if bucket != "" {
		fmt.Fprintf(&b, "# remote path: %s:%s\n", conn.ProfileName, bucket)
	}
	return &ExportResult{
		Filename: fmt.Sprintf("%s.rclone.conf", conn.ProfileName),
		Content:  b.String(),
	}
}

func isAWSEndpoint(endpoint string) bool {
	return DetectVendor(endpoint) == "aws"
}

func rcloneProvider(endpoint string) string {
	switch DetectVendor(endpoint) {
	case "aws":
		return "AWS"
	case "b2":
		return "Other"
	default:
		return "Other"
	}
}
