package metadata

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bayleafwalker/pinresolve/internal/metrics"
)

// The metadata service has a single unary method. Requests and responses are
// google.protobuf.Struct messages:
//
//	request:  {"name": str, "version": str, "locator": str, "extras": [str]}
//	response: {"dependencies": [str]}
const (
	ServiceName           = "pinresolve.metadata.v1.Metadata"
	fetchDependenciesPath = "/" + ServiceName + "/FetchDependencies"
)

type metadataServer interface {
	FetchDependencies(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*metadataServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FetchDependencies", Handler: fetchDependenciesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pinresolve/metadata/v1/metadata.proto",
}

func fetchDependenciesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metadataServer).FetchDependencies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fetchDependenciesPath}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(metadataServer).FetchDependencies(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterServer exposes p as the metadata service on s.
func RegisterServer(s grpc.ServiceRegistrar, p Provider) {
	s.RegisterService(&serviceDesc, &server{provider: p})
}

type server struct {
	provider Provider
}

func (s *server) FetchDependencies(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.fetch(ctx, in)
	metrics.MetadataRequestsTotal.WithLabelValues(status.Code(err).String()).Inc()
	return out, err
}

func (s *server) fetch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	q, err := decodeQuery(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	logger := log.FromContext(ctx).WithValues("package", q.Key())
	deps, err := s.provider.FetchDependencies(ctx, q)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, status.Error(codes.NotFound, err.Error())
	case err != nil:
		logger.Error(err, "fetch dependencies")
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	logger.V(1).Info("served dependencies", "count", len(deps))
	return structpb.NewStruct(map[string]any{"dependencies": stringsToAny(deps)})
}

// GRPCClient is a Provider backed by a remote metadata server.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// Dial connects to a metadata server without transport security.
func Dial(target string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

func (c *GRPCClient) FetchDependencies(ctx context.Context, q Query) ([]string, error) {
	in, err := structpb.NewStruct(map[string]any{
		"name":    q.Name,
		"version": q.Version,
		"locator": q.Locator,
		"extras":  stringsToAny(q.Extras),
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fetchDependenciesPath, in, out); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Key())
		}
		return nil, fmt.Errorf("metadata server: %s: %w", q.Key(), err)
	}
	return listStrings(out.GetFields()["dependencies"])
}

func decodeQuery(in *structpb.Struct) (Query, error) {
	fields := in.GetFields()
	q := Query{
		Name:    fields["name"].GetStringValue(),
		Version: fields["version"].GetStringValue(),
		Locator: fields["locator"].GetStringValue(),
	}
	if q.Name == "" {
		return Query{}, errors.New("name is required")
	}
	if (q.Version == "") == (q.Locator == "") {
		return Query{}, errors.New("exactly one of version and locator is required")
	}
	extras, err := listStrings(fields["extras"])
	if err != nil {
		return Query{}, fmt.Errorf("extras: %w", err)
	}
	q.Extras = extras
	return q, nil
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func listStrings(v *structpb.Value) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.GetKind().(*structpb.Value_ListValue); !ok {
		return nil, fmt.Errorf("expected list, got %T", v.GetKind())
	}
	values := v.GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, item := range values {
		s, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", item.GetKind())
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}
