// Copyright (c) SandFlow Authors.
// Licensed under the MIT License.

/*
Package sandbox 实现代码执行引擎的核心管线。

# 概述

sandbox 将一段不可信脚本从接收到返回划分为严格有序的阶段，任何
阶段失败都会短路后续阶段并以结构化结果返回，绝不向调用方抛出
原始异常：

 1. 身份校验（IdentityChecker）与审计开始（BeginAudit）
 2. 模式扫描（Scanner）— 拒绝列表正则，首个命中即失败
 3. 导入仲裁（Mediator）— 允许列表，安全导入改写为注释，
    其余整体拒绝并枚举可用能力
 4. Unicode 清洗（SanitizeUnicode）— 代理字符替换 + 编码回环校验
 5. 代码预处理（Preprocess）— 固定修复表，所有改动计入 fixes_applied
 6. 能力环境构建（NewEnvironment）— 每请求全新解释器状态，
    仅开放安全基础库，缺失的可选模块绑定为降级代理
 7. 执行（Executor）— LState.SetContext 强制墙钟超时，
    运行期错误按修复提示表分类
 8. 变量提取（ExtractVariables）— 基线快照排除系统名，
    序列化永不失败

# 安全边界

环境内不存在文件、网络、进程与动态加载能力；文档存储仅以只读
门面（db）与身份限定工具门面（tools）形式可见，写方法在结构上
不存在。每个环境由单次执行独占，执行结束即销毁。
*/
package sandbox
