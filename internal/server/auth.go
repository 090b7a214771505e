package server

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nainya/outlinestore/internal/api"
	"github.com/nainya/outlinestore/internal/logger"
)

// Metadata keys read by AuthInterceptor.
const (
	MetadataAuthorization = "authorization"
	MetadataUserID        = "x-user-id"
)

// readMethods skip authorization, as GET routes do over REST.
var readMethods = map[string]bool{
	fullMethod("Read"): true,
}

// AuthInterceptor runs auth before every outline method except Read. The
// caller identity comes from x-user-id metadata; authorization metadata is
// handed to auth as the request's Authorization header. Rejections return
// codes.Unauthenticated.
func AuthInterceptor(auth api.AuthFunc, log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if auth == nil || readMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		userID := firstValue(md, MetadataUserID)

		r, err := http.NewRequestWithContext(ctx, http.MethodPost, info.FullMethod, nil)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		if v := firstValue(md, MetadataAuthorization); v != "" {
			r.Header.Set("Authorization", v)
		}

		ok, err := auth(ctx, userID, r)
		if err != nil || !ok {
			log.Warn("authorization rejected").
				Str("user", userID).
				Str("method", info.FullMethod).
				Err(err).
				Send()
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return handler(ctx, req)
	}
}

// WithCredentials attaches the identity and bearer token AuthInterceptor checks.
func WithCredentials(ctx context.Context, userID, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		MetadataUserID, userID,
		MetadataAuthorization, "Bearer "+token,
	)
}

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
