package archive

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "rankflow/config"
	"rankflow/logger"
	"rankflow/models"
)

// ParquetRecord is the on-disk row layout for archived rankings.
type ParquetRecord struct {
	Keyword    string `parquet:"name=keyword, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProductID  string `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Platform   string `parquet:"name=platform, type=BYTE_ARRAY, convertedtype=UTF8"`
	Rank       int32  `parquet:"name=rank, type=INT32"`
	Title      string `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	URL        string `parquet:"name=url, type=BYTE_ARRAY, convertedtype=UTF8"`
	Page       int32  `parquet:"name=page, type=INT32"`
	ObservedAt int64  `parquet:"name=observed_at, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; report the current end of buffer.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// S3Archiver copies rows that a retention sweep is about to evict into S3 as
// parquet objects, one per hour bucket.
type S3Archiver struct {
	cfg      appconfig.S3Config
	s3Client *s3.Client
	log      *logger.Log
}

// NewS3Archiver configures the AWS SDK and validates credentials up front so
// a misconfigured archiver fails at startup, not mid-sweep.
func NewS3Archiver(cfg *appconfig.Config) (*S3Archiver, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("s3_archiver").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"region": cfg.Storage.S3.Region,
	}).Info("s3 archiver initialized")

	return &S3Archiver{
		cfg:      cfg.Storage.S3,
		s3Client: s3Client,
		log:      log,
	}, nil
}

// Archive writes the records to S3 grouped by hour bucket. Any failed
// upload fails the whole call so the sweeper keeps the rows.
func (a *S3Archiver) Archive(ctx context.Context, records []models.RankingRecord) error {
	if len(records) == 0 {
		return nil
	}

	buckets := make(map[time.Time][]models.RankingRecord)
	for _, r := range records {
		bucket := r.HourBucket()
		buckets[bucket] = append(buckets[bucket], r)
	}

	hours := make([]time.Time, 0, len(buckets))
	for hour := range buckets {
		hours = append(hours, hour)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	for _, hour := range hours {
		group := buckets[hour]
		log := a.log.WithComponent("s3_archiver").WithFields(logger.Fields{
			"hour":    hour.Format(time.RFC3339),
			"records": len(group),
		})

		data, err := a.createParquetFile(group)
		if err != nil {
			return fmt.Errorf("create parquet for bucket %s: %w", hour.Format(time.RFC3339), err)
		}

		key := a.objectKey(hour)
		if err := a.uploadToS3(ctx, key, data); err != nil {
			log.WithError(err).
				WithFields(logger.Fields{"bucket": a.cfg.Bucket, "s3_key": key}).
				Error("failed to upload archive object")
			return fmt.Errorf("upload bucket %s: %w", hour.Format(time.RFC3339), err)
		}

		log.WithFields(logger.Fields{"s3_key": key, "file_size": len(data)}).Info("hour bucket archived")
	}

	return nil
}

func (a *S3Archiver) objectKey(hour time.Time) string {
	prefix := a.cfg.Prefix
	if prefix == "" {
		prefix = "rankings"
	}
	return fmt.Sprintf("%s/date=%s/hour=%02d/rankings_%s_%s.parquet",
		prefix,
		hour.Format("2006-01-02"),
		hour.Hour(),
		hour.UTC().Format("20060102150405"),
		uuid.New().String()[:8])
}

func (a *S3Archiver) createParquetFile(records []models.RankingRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch a.cfg.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, r := range records {
		if err := pw.Write(toParquetRecord(r)); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func toParquetRecord(r models.RankingRecord) ParquetRecord {
	return ParquetRecord{
		Keyword:    r.Keyword,
		ProductID:  r.ProductID,
		Platform:   r.Platform,
		Rank:       int32(r.Rank),
		Title:      metadataString(r.Metadata, "title"),
		URL:        metadataString(r.Metadata, "url"),
		Page:       metadataInt(r.Metadata, "page"),
		ObservedAt: r.ObservedAt.UTC().UnixMilli(),
	}
}

func metadataString(metadata map[string]interface{}, key string) string {
	if s, ok := metadata[key].(string); ok {
		return s
	}
	return ""
}

// metadataInt tolerates float64 values since jsonb round-trips numbers as
// floats.
func metadataInt(metadata map[string]interface{}, key string) int32 {
	switch v := metadata[key].(type) {
	case int:
		return int32(v)
	case int32:
		return v
	case int64:
		return int32(v)
	case float64:
		return int32(v)
	default:
		return 0
	}
}

func (a *S3Archiver) uploadToS3(ctx context.Context, key string, data []byte) error {
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	return err
}
