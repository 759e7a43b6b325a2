// Package mongodb opens the document store connection used by the comments
// service.
package mongodb

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Options describes where the server lives. URI wins over the discrete fields.
type Options struct {
	URI      string
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// OptionsFromEnv reads MONGODB_URI or MONGODB_HOST/PORT/USERNAME/PASSWORD and
// MONGODB_DBNAME.
func OptionsFromEnv() Options {
	return Options{
		URI:      strings.TrimSpace(os.Getenv("MONGODB_URI")),
		Host:     strings.TrimSpace(os.Getenv("MONGODB_HOST")),
		Port:     strings.TrimSpace(os.Getenv("MONGODB_PORT")),
		Username: strings.TrimSpace(os.Getenv("MONGODB_USERNAME")),
		Password: os.Getenv("MONGODB_PASSWORD"),
		Database: strings.TrimSpace(os.Getenv("MONGODB_DBNAME")),
	}
}

// Configured reports whether any connection setting was provided.
func (o Options) Configured() bool {
	return o.URI != "" || o.Host != ""
}

// ConnectionURI builds the mongodb:// URI, applying localhost:27017 defaults.
func (o Options) ConnectionURI() string {
	if o.URI != "" {
		return o.URI
	}
	host := o.Host
	if host == "" {
		host = "localhost"
	}
	port := o.Port
	if port == "" {
		port = "27017"
	}
	u := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(host, port)}
	if o.Username != "" {
		u.User = url.UserPassword(o.Username, o.Password)
	}
	return u.String()
}

// DatabaseName falls back to ghost-kaede.
func (o Options) DatabaseName() string {
	if o.Database == "" {
		return "ghost-kaede"
	}
	return o.Database
}

// Connect dials and pings the server.
func Connect(ctx context.Context, opts Options) (*mongo.Client, error) {
	uri := opts.ConnectionURI()
	if uri == "" {
		return nil, errors.New("mongodb uri is required")
	}
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetAppName("kaede-comments").
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}
