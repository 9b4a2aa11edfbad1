// Точка входа certgate — шлюз справок об антецедентах через бота мессенджера.
// Команды: serve (HTTP-сервис), login (авторизация сессии мессенджера),
// keys (управление ключами доступа).
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bigkaa/certgate/internal/config"
)

var rootCmd = &cobra.Command{
	Use:          "certgate",
	Short:        "Шлюз справок об антецедентах",
	Version:      config.Version,
	SilenceUsage: true,
	Long: `certgate принимает HTTP-запросы справок по DNI, пересылает их боту
мессенджера от имени авторизованной сессии и возвращает разобранный ответ
вместе с PDF-вложением.

Конфигурация читается из переменных окружения CG_* и файла .env.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(viper.GetString("env-file"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ошибка:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("env-file", ".env", "файл с переменными окружения")
	rootCmd.PersistentFlags().String("log-level", "", "уровень логирования (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "формат логов (json, text)")
	_ = viper.BindPFlag("env-file", rootCmd.PersistentFlags().Lookup("env-file"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(keysCmd())
}

// loadEnv загружает .env (переменные окружения процесса имеют приоритет)
// и переносит флаги командной строки в CG_*, откуда их читает config.
func loadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("загрузка %s: %w", envFile, err)
		}
	}
	for _, key := range []string{"log-level", "log-format"} {
		if v := viper.GetString(key); v != "" {
			env := "CG_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
			if err := os.Setenv(env, v); err != nil {
				return err
			}
		}
	}
	return nil
}
