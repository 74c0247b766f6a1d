package main

import (
	"flag"
	"io"
	"log"
	"os"
	"reflect"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/robotalks/canlink/pkg/mqtt"
	"github.com/robotalks/canlink/pkg/telemetry/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/canlink/"
	outFile string
	outSize = 10
)

func init() {
	if val := os.Getenv("CANLINK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&outFile, "out", outFile, "Also append messages to this file, rotated by size.")
	flag.IntVar(&outSize, "out-size", outSize, "Rotate the -out file at this many megabytes.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)
	if outFile != "" {
		out := &lumberjack.Logger{Filename: outFile, MaxSize: outSize, MaxBackups: 3}
		defer out.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, out))
	}

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/"+mqtt.TopicMeta) {
			if len(payload) == 0 {
				log.Printf("%s: offline", topic)
			} else {
				log.Printf("%s: %s", topic, string(payload))
			}
			return
		}
		typed, err := msgs.DecodeTyped(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		msg, err := typed.Decode()
		if err != nil {
			log.Printf("%s: decode error: (type_id=%x) %v", topic, typed.TypeId, err)
			return
		}
		log.Printf("%s: [%s] %s", topic, reflect.Indirect(reflect.ValueOf(msg)).Type().Name(), msg.String())
	})
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
