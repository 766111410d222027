package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/config"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/feed"
)

// chattester 在命令行中跑若干轮对话，便于验证模拟回复或 Ark 模型配置。
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	responder := flag.String("responder", "", "回复来源: auto、simulated 或 provider，默认读取 CHAT_RESPONDER")
	files := flag.String("files", "", "随第一条消息附带的文件名，逗号分隔（仅展示）")
	asJSON := flag.Bool("json", false, "以 JSON 输出完整对话记录")
	showDeltas := flag.Bool("deltas", false, "打印流式返回的片段")
	verbose := flag.Bool("v", false, "输出调试日志")
	timeout := flag.Duration("timeout", 2*time.Minute, "整体超时时间")

	flag.Parse()

	prompts := flag.Args()
	if len(prompts) == 0 {
		flag.Usage()
		log.Fatal("请在参数中提供至少一条消息，例如: chattester \"hello\" \"[Search: golang]\"")
	}

	if *responder != "" {
		if cfg.Chat.Responder, err = config.ParseResponder(*responder); err != nil {
			log.Fatalf("-responder 参数无效: %v", err)
		}
	}

	logger := zap.NewNop()
	if *verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("日志初始化失败: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	acquirer, err := ai.NewAcquirer(ctx, cfg.AI, cfg.Chat, logger)
	if err != nil {
		log.Fatalf("回复来源初始化失败: %v", err)
	}

	hub := feed.NewHub(256, logger)
	if *showDeltas {
		events, stopDeltas := hub.Subscribe()
		defer stopDeltas()
		go printDeltas(events)
	}

	controller := chatservice.NewController(
		chatservice.NewStore(),
		acquirer,
		chatservice.WithPublisher(hub),
		chatservice.WithLogger(logger),
	)

	attachments := parseFiles(*files)
	for i, prompt := range prompts {
		var refs []chat.FileRef
		if i == 0 {
			refs = attachments
		}

		started := time.Now()
		turn, err := controller.Submit(ctx, prompt, refs)
		if err != nil {
			log.Fatalf("第 %d 轮失败: %v", i+1, err)
		}
		if turn.Skipped {
			log.Printf("第 %d 轮为空消息，已跳过", i+1)
			continue
		}

		if !*asJSON {
			fmt.Printf("you> %s\n", turn.User.Content)
			fmt.Printf("ai>  %s\n", turn.Assistant.Content)
			fmt.Printf("     (%s, failed=%t)\n\n", time.Since(started).Round(time.Millisecond), turn.Failed)
		}
	}

	if *asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(controller.Messages()); err != nil {
			log.Fatalf("输出对话记录失败: %v", err)
		}
	}
}

func parseFiles(raw string) []chat.FileRef {
	var refs []chat.FileRef
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			refs = append(refs, chat.FileRef{Name: name})
		}
	}
	return refs
}

func printDeltas(events <-chan feed.Event) {
	for ev := range events {
		if ev.Type == feed.EventDelta {
			fmt.Fprint(os.Stderr, ev.Content)
		}
	}
}
