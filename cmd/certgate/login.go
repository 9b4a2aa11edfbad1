package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigkaa/certgate/internal/config"
	"github.com/bigkaa/certgate/internal/telegram"
)

func loginCmd() *cobra.Command {
	var phone, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Авторизовать сессию мессенджера и сохранить её в файл",
		Long: `Интерактивная авторизация: код подтверждения запрашивается в терминале.
После входа сессия сохраняется в CG_TG_SESSION_FILE и боту отправляется /start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := config.LoadLogger()
			if err != nil {
				return err
			}
			tgCfg, err := config.LoadTelegram()
			if err != nil {
				return err
			}

			in := bufio.NewReader(os.Stdin)
			if phone == "" {
				fmt.Print("Номер телефона (+51...): ")
				line, err := in.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("чтение номера: %w", err)
				}
				phone = strings.TrimSpace(line)
			}
			if phone == "" {
				return fmt.Errorf("номер телефона обязателен")
			}

			transport := telegram.New(telegram.Config{
				AppID:       tgCfg.AppID,
				AppHash:     tgCfg.AppHash,
				SessionFile: tgCfg.SessionFile,
			}, logger)
			res, err := transport.Login(cmd.Context(), phone, password, tgCfg.TargetBot, in, os.Stdout)
			if err != nil {
				return fmt.Errorf("авторизация: %w", err)
			}

			fmt.Printf("Сессия сохранена в %s\n", tgCfg.SessionFile)
			fmt.Printf("Пользователь: %s (@%s, id %d)\n", res.FirstName, res.Username, res.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "номер телефона аккаунта")
	cmd.Flags().StringVar(&password, "password", "", "пароль двухфакторной аутентификации")
	return cmd
}
