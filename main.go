package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rehiy/web-shortrange/config"
	"github.com/rehiy/web-shortrange/database"
	"github.com/rehiy/web-shortrange/events"
	"github.com/rehiy/web-shortrange/logging"
	"github.com/rehiy/web-shortrange/router"
	"github.com/rehiy/web-shortrange/service"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config (defaults to $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	closeLog, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}
	defer closeLog()

	// 初始化数据库
	if err := database.InitDB(cfg.Database.Path); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
	go service.NewEventlogService().RunPrune(ctx, retention)

	// 打开短距模块
	rs := service.GetRadioService()
	go rs.ScanRadios(ctx, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: router.Apply(rs, events.GetEventListener(), cfg.HTTP.Static),
	}

	// 启动服务器
	go func() {
		log.Printf("Server starting on :%s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// 等待中断信号
	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	rs.Shutdown()
}
