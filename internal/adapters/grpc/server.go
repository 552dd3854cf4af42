package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/application"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// PosInternalService is the mesh-internal surface other services use to
// query delivery state without going through the public HTTP API.
type PosInternalService interface {
	GetOrderStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListLocations(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type PosInternalServer struct {
	service *application.Service
}

func NewPosInternalServer(service *application.Service) *PosInternalServer {
	return &PosInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc PosInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "viralforge.pos.v1.PosInternalService",
		HandlerType: (*PosInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "GetOrderStatus",
				Handler:    getOrderStatusHandler(svc),
			},
			{
				MethodName: "ListLocations",
				Handler:    listLocationsHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/pos/v1/pos_internal.proto",
	}, svc)
}

func (s *PosInternalServer) GetOrderStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	idVal := req.GetFields()["order_id"]
	if idVal == nil {
		return nil, status.Error(codes.InvalidArgument, "missing order_id")
	}
	orderID := idVal.GetStringValue()
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing order_id")
	}

	st, err := s.service.Status(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, status.Error(codes.NotFound, "order not found")
		}
		return nil, status.Errorf(codes.Internal, "get order status: %v", err)
	}

	providers := make([]any, 0, len(st.Providers))
	for _, ps := range st.Providers {
		providers = append(providers, map[string]any{
			"provider":          string(ps.Provider),
			"state":             string(ps.State),
			"provider_order_id": ps.ProviderOrderID,
			"attempts":          float64(ps.Attempts),
			"last_error":        ps.LastError,
		})
	}
	resp, err := structpb.NewStruct(map[string]any{
		"order_id":      st.OrderID,
		"location_id":   st.LocationID,
		"degraded":      st.Degraded,
		"fallback_sent": st.Fallback.Sent,
		"providers":     providers,
		"updated_at":    st.UpdatedAt.Unix(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *PosInternalServer) ListLocations(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ids := s.service.Locations()
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"locations": values,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func getOrderStatusHandler(svc PosInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetOrderStatus(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     svc,
			FullMethod: "/viralforge.pos.v1.PosInternalService/GetOrderStatus",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return svc.GetOrderStatus(ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func listLocationsHandler(svc PosInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.ListLocations(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     svc,
			FullMethod: "/viralforge.pos.v1.PosInternalService/ListLocations",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return svc.ListLocations(ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}
