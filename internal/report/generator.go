// Package report assembles performance reports from analytics history and
// optionally archives the artifact to S3.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"campaign-automation/internal/config"
	"campaign-automation/internal/models"
	"campaign-automation/internal/store"
)

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Generator builds report data for a date range and section list.
type Generator struct {
	store  *store.Store
	upload uploader
	now    func() time.Time
}

// Data is the assembled report.
type Data struct {
	ReportID    string               `json:"reportId"`
	DateRange   models.DateRange     `json:"dateRange"`
	Sections    []string             `json:"sections"`
	UserID      string               `json:"userId,omitempty"`
	KPI         *store.MetricSums    `json:"kpi,omitempty"`
	Campaigns   []store.Campaign     `json:"campaigns,omitempty"`
	Platforms   []store.PlatformSums `json:"platforms,omitempty"`
	ArtifactURL string               `json:"artifactUrl,omitempty"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

// NewGenerator constructs the generator; an S3 uploader is attached when a
// bucket is configured.
func NewGenerator(ctx context.Context, cfg config.Config, st *store.Store) (*Generator, error) {
	g := &Generator{store: st, now: time.Now}
	if cfg.ReportS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		g.upload = &s3Uploader{client: client, bucket: cfg.ReportS3Bucket}
	}
	return g, nil
}

// Generate assembles the requested sections over the date range. Missing
// range defaults to the last 30 days; missing sections default to
// kpi/campaigns/platforms.
func (g *Generator) Generate(ctx context.Context, dateRange *models.DateRange, sections []string, userID string) (Data, error) {
	now := g.now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now
	if dateRange != nil {
		var err error
		if from, err = parseDay(dateRange.Start, from); err != nil {
			return Data{}, err
		}
		if to, err = parseDay(dateRange.End, to); err != nil {
			return Data{}, err
		}
		// End of day inclusive.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	if len(sections) == 0 {
		sections = []string{"kpi", "campaigns", "platforms"}
	}

	data := Data{
		ReportID: "report_" + uuid.New().String(),
		DateRange: models.DateRange{
			Start: from.Format("2006-01-02"),
			End:   to.Format("2006-01-02"),
		},
		Sections:    sections,
		UserID:      userID,
		GeneratedAt: now,
	}

	for _, section := range sections {
		switch section {
		case "kpi":
			sums, err := g.store.AggregateMetricsBetween(ctx, from, to)
			if err != nil {
				return Data{}, fmt.Errorf("kpi section: %w", err)
			}
			data.KPI = &sums
		case "campaigns":
			campaigns, err := g.store.ListCampaigns(ctx, 100)
			if err != nil {
				return Data{}, fmt.Errorf("campaigns section: %w", err)
			}
			data.Campaigns = campaigns
		case "platforms":
			platforms, err := g.store.PlatformBreakdown(ctx, from, to)
			if err != nil {
				return Data{}, fmt.Errorf("platforms section: %w", err)
			}
			data.Platforms = platforms
		default:
			return Data{}, fmt.Errorf("unknown report section %q", section)
		}
	}

	if g.upload != nil {
		body, err := json.Marshal(data)
		if err != nil {
			return Data{}, fmt.Errorf("marshal report: %w", err)
		}
		key := fmt.Sprintf("reports/%s/%s.json", now.Format("2006-01-02"), data.ReportID)
		url, err := g.upload.Upload(ctx, key, body, "application/json")
		if err != nil {
			return Data{}, fmt.Errorf("archive report: %w", err)
		}
		data.ArtifactURL = url
	}

	return data, nil
}

func parseDay(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse report date %q: %w", s, err)
	}
	return t, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (u *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put report object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ReportS3Region),
	}
	if cfg.ReportS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ReportS3Endpoint,
					HostnameImmutable: cfg.ReportS3PathStyle,
					SigningRegion:     cfg.ReportS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ReportS3PathStyle
	}), nil
}
