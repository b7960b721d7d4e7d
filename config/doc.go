// Package config 提供 SandFlow 的配置管理功能。
//
// 包含服务器、执行引擎、文档存储、认证、日志与遥测的配置结构，
// 支持从 YAML 文件和环境变量加载，优先级为默认值 → 文件 → 环境变量。
// 配置在进程启动时读取一次，运行期间不再变更。
package config
