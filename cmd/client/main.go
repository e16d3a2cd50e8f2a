package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tablekv/internal/config"
	"tablekv/internal/logger"
	"tablekv/internal/network"
	"tablekv/internal/tlsutil"
	"tablekv/internal/types"
)

func main() {
	configPath := flag.String("config", "client.toml", "Path to the client config file")
	subscribe := flag.String("subscribe", "", "Subscribe to a topic and print incoming values")
	publish := flag.String("publish", "", "Publish -message to a topic")
	message := flag.String("message", "", "Message body for -publish")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		logger.Fatal("config: %v", err)
	}
	if err := logger.Setup(cfg.LogLevel); err != nil {
		logger.Fatal("logger: %v", err)
	}
	defer logger.Sync()

	tlsConf, err := tlsutil.NewClientConfig(cfg.ServerName, cfg.TLS.CAFile, cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		logger.Fatal("tls: %v", err)
	}

	client, err := network.Dial(cfg.ServerAddr, tlsConf, cfg.PoolSize)
	if err != nil {
		logger.Fatal("connect %s: %v", cfg.ServerAddr, err)
	}
	defer client.Close()

	switch {
	case *subscribe != "":
		runSubscribe(client, *subscribe)
	case *publish != "":
		resp, err := client.Publish(*publish, []types.Value{types.StringValue(*message)})
		if err != nil {
			logger.Fatal("publish: %v", err)
		}
		fmt.Printf("published, status %d\n", resp.Status)
	default:
		runDemo(client)
	}
}

func runSubscribe(client *network.Client, topic string) {
	sub, err := client.Subscribe(topic)
	if err != nil {
		logger.Fatal("subscribe: %v", err)
	}
	fmt.Printf("subscribed to %q with id %d\n", topic, sub.ID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case resp, open := <-sub.C:
			if !open {
				fmt.Println("subscription closed by server")
				return
			}
			for _, v := range resp.Values {
				fmt.Println(formatValue(v))
			}
		case <-sigChan:
			if _, err := client.Unsubscribe(topic, sub.ID); err != nil {
				logger.Error("unsubscribe: %v", err)
			}
			return
		}
	}
}

func runDemo(client *network.Client) {
	resp, err := client.Execute(types.NewHset("greetings", "hello", types.StringValue("world")))
	if err != nil {
		logger.Fatal("hset: %v", err)
	}
	fmt.Printf("HSET status %d\n", resp.Status)

	resp, err = client.Execute(types.NewHget("greetings", "hello"))
	if err != nil {
		logger.Fatal("hget: %v", err)
	}
	fmt.Printf("HGET status %d", resp.Status)
	for _, v := range resp.Values {
		fmt.Printf(" %s", formatValue(v))
	}
	fmt.Println()

	resp, err = client.Execute(types.NewHgetall("greetings"))
	if err != nil {
		logger.Fatal("hgetall: %v", err)
	}
	fmt.Printf("HGETALL status %d\n", resp.Status)
	for _, p := range resp.Pairs {
		fmt.Printf("  %s = %s\n", p.Key, formatValue(p.Value))
	}
}

func formatValue(v types.Value) string {
	switch v.Kind {
	case types.KindString:
		return v.Str
	case types.KindBinary:
		return fmt.Sprintf("%x", v.Bin)
	case types.KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case types.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case types.KindBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return "<none>"
	}
}
