package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deegree/ows/utils"
	"github.com/deegree/ows/worker/gdalprocess"
	"github.com/deegree/ows/worker/rpc"
	reuseport "github.com/kavu/go_reuseport"
	"google.golang.org/grpc"
)

func main() {
	port := flag.Int("p", 6000, "gRPC server listening port.")
	poolSize := flag.Int("n", 8, "Maximum number of requests handled concurrently.")
	maxMsgSize := flag.Int("max_msg_size", 64*1024*1024, "Maximum size in bytes of a warp response.")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	utils.InitGdal()

	lis, err := reuseport.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	s := grpc.NewServer(grpc.MaxSendMsgSize(*maxMsgSize))
	rpc.RegisterWorkerServer(s, gdalprocess.NewLocalWorker(*poolSize, *debug))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signals
		log.Printf("received %v, stopping", sig)
		s.GracefulStop()
	}()

	log.Printf("worker listening on :%d with %d concurrent warps", *port, *poolSize)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
