package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/yui-companion/backend/internal/client"
	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/logging"
	"github.com/zhouzirui/yui-companion/backend/internal/service/speech"
)

func main() {
	logger := logging.New("debug", logging.FormatConsole)

	if err := godotenv.Load(); err != nil {
		logger.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("配置加载失败")
	}

	if !cfg.Speech.Enabled() {
		logger.Fatal().Msg("语音服务未启用，请先配置 ELEVENLABS_API_KEY 与 VOICE_ID")
	}

	text := flag.String("text", "", "TTS 输入文本")
	outDir := flag.String("out", ".", "音频输出目录")
	voice := flag.String("voice", "", "声音 ID，默认使用 VOICE_ID")
	split := flag.Bool("split", true, "按句切分，每句单独合成")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		logger.Fatal().Msg("请通过 -text 指定待合成文本")
	}

	sentences := []string{strings.TrimSpace(*text)}
	if *split {
		sentences = companion.SplitSentences(*text)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("创建输出目录失败")
	}

	svc := speech.NewService(cfg.Speech, logger).WithVoice(*voice)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	decoder := client.MP3Decoder{}
	for i, sentence := range sentences {
		start := time.Now()
		resp, err := svc.Synthesize(ctx, sentence)
		if err != nil {
			logger.Error().Err(err).Int("index", i).Str("text", sentence).Msg("合成失败")
			continue
		}

		format, duration, err := decoder.Decode(resp.AudioData)
		if err != nil {
			logger.Error().Err(err).Int("index", i).Msg("音频无法解码")
			format = "bin"
		}

		path := filepath.Join(*outDir, fmt.Sprintf("sentence-%02d.%s", i, format))
		if err := os.WriteFile(path, resp.AudioData, 0o644); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("写入音频失败")
			continue
		}

		logger.Info().
			Int("index", i).
			Str("text", sentence).
			Str("path", path).
			Int("bytes", len(resp.AudioData)).
			Dur("duration", duration).
			Dur("elapsed", time.Since(start)).
			Msg("合成完成")
	}
}
