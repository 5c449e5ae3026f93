package nogiblog_test

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/nogiblog/internal/app"
)

type composeFile struct {
	Services map[string]struct {
		Build       string            `yaml:"build"`
		Image       string            `yaml:"image"`
		Command     []string          `yaml:"command"`
		Environment map[string]string `yaml:"environment"`
		Networks    []string          `yaml:"networks"`
		DependsOn   map[string]struct {
			Condition string `yaml:"condition"`
		} `yaml:"depends_on"`
	} `yaml:"services"`
	Networks map[string]struct {
		Internal bool `yaml:"internal"`
	} `yaml:"networks"`
}

func loadCompose(t *testing.T) composeFile {
	t.Helper()
	data, err := os.ReadFile("docker-compose.yml")
	if err != nil {
		t.Fatalf("docker-compose.yml を読めない: %v", err)
	}
	var c composeFile
	if err := yaml.Unmarshal(data, &c); err != nil {
		t.Fatalf("docker-compose.yml のパースに失敗: %v", err)
	}
	return c
}

// dockerfileStages はFROM行ごとに区切ったDockerfileの各ステージを返す。
func dockerfileStages(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile("Dockerfile")
	if err != nil {
		t.Fatalf("Dockerfile を読めない: %v", err)
	}
	var stages []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "FROM ") {
			stages = append(stages, "")
		}
		if len(stages) > 0 {
			stages[len(stages)-1] += line + "\n"
		}
	}
	return stages
}

func TestDockerfile_Stages(t *testing.T) {
	stages := dockerfileStages(t)
	if len(stages) != 2 {
		t.Fatalf("ステージ数 = %d, want 2 (builder + runtime)", len(stages))
	}

	builder, runtime := stages[0], stages[1]
	if !strings.HasPrefix(builder, "FROM golang:") {
		t.Errorf("ビルドステージがGoイメージではない: %s", strings.SplitN(builder, "\n", 2)[0])
	}
	if !strings.Contains(builder, "-o /out/nogiblog ./cmd/nogiblog") {
		t.Error("cmd/nogiblog から nogiblog バイナリをビルドしていない")
	}

	if !strings.HasPrefix(runtime, "FROM gcr.io/distroless/") {
		t.Errorf("実行ステージがdistrolessではない: %s", strings.SplitN(runtime, "\n", 2)[0])
	}
	for _, want := range []string{
		`ENTRYPOINT ["/nogiblog"]`,
		`CMD ["serve"]`,
		// distrolessにはcurlが無いのでサブコマンドで確認する
		`CMD ["/nogiblog", "healthcheck"]`,
	} {
		if !strings.Contains(runtime, want) {
			t.Errorf("実行ステージに %s が無い", want)
		}
	}
}

func TestDockerCompose_Services(t *testing.T) {
	c := loadCompose(t)

	for _, name := range []string{"api", "worker", "migrate", "db"} {
		if _, ok := c.Services[name]; !ok {
			t.Errorf("サービス %q が無い", name)
		}
	}
	if img := c.Services["db"].Image; !strings.HasPrefix(img, "postgres:") {
		t.Errorf("db image = %q, want postgres", img)
	}

	for name, svc := range c.Services {
		if svc.Build == "" {
			continue
		}
		// アプリのサービスは既知のサブコマンドで起動する
		if _, err := app.ParseCommand(svc.Command); err != nil {
			t.Errorf("%s: command %v: %v", name, svc.Command, err)
		}
		if svc.Environment["STORAGE_DRIVER"] != "postgres" {
			t.Errorf("%s: STORAGE_DRIVER = %q", name, svc.Environment["STORAGE_DRIVER"])
		}
	}

	if got := c.Services["worker"].Command; len(got) != 1 || got[0] != "worker" {
		t.Errorf("worker command = %v", got)
	}
	for _, name := range []string{"api", "worker"} {
		if cond := c.Services[name].DependsOn["migrate"].Condition; cond != "service_completed_successfully" {
			t.Errorf("%s はマイグレーション完了を待つべき: condition = %q", name, cond)
		}
	}
}

func TestDockerCompose_Networks(t *testing.T) {
	c := loadCompose(t)

	if !c.Networks["internal"].Internal {
		t.Error("internal ネットワークは internal: true であるべき")
	}
	if _, ok := c.Networks["external"]; !ok {
		t.Error("external ネットワークが無い")
	}

	has := func(svc, network string) bool {
		for _, n := range c.Services[svc].Networks {
			if n == network {
				return true
			}
		}
		return false
	}
	// 公式サイトに出るのはapiとworkerだけ
	for svc, want := range map[string]bool{"api": true, "worker": true, "migrate": false, "db": false} {
		if got := has(svc, "external"); got != want {
			t.Errorf("%s on external = %v, want %v", svc, got, want)
		}
	}
}
