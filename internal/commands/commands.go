// Package commands implements what each command line subcommand does once its
// arguments have been parsed.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"immich-service/internal/client"
	"immich-service/internal/session"
	"immich-service/models"

	"go.uber.org/zap"
)

// API is the part of the server API the commands use
type API interface {
	Ping(ctx context.Context) (*models.ServerPingResponse, error)
	Version(ctx context.Context) (*models.ServerVersionResponse, error)
	Me(ctx context.Context) (*models.UserResponse, error)
	BulkUploadCheck(ctx context.Context, items []models.AssetBulkUploadCheckItem) ([]models.AssetBulkUploadCheckResult, error)
	UploadAsset(ctx context.Context, upload client.AssetUpload) (*models.AssetFileUploadResponse, error)
}

// Deps is what every command needs from the process
type Deps struct {
	Out    io.Writer
	In     io.Reader
	Logger *zap.Logger
	Store  *session.Store
	// Connect builds an API for a server; defaults to client.New
	Connect func(instanceURL, apiKey string) API
}

func (d Deps) withDefaults() Deps {
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.In == nil {
		d.In = os.Stdin
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Connect == nil {
		d.Connect = func(instanceURL, apiKey string) API {
			return client.New(instanceURL, apiKey)
		}
	}
	return d
}

func (d Deps) printf(format string, args ...interface{}) {
	fmt.Fprintf(d.Out, format, args...)
}

// connect opens an API for the saved login
func (d Deps) connect() (API, *session.Credentials, error) {
	creds, err := d.Store.Load()
	if err != nil {
		return nil, nil, err
	}
	return d.Connect(creds.InstanceURL, creds.APIKey), creds, nil
}
